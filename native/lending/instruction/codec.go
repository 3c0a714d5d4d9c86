package instruction

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/state"
)

// ErrDecode reports instruction data that is empty, truncated or carries an
// unknown tag.
var ErrDecode = errors.New("instruction: malformed data")

const (
	amountLen = 8
	// configLen covers the rate fields, fees and host percentage shared by
	// InitReserve and SetReserveConfig.
	configLen = 7 + 3*8 + 1
)

type reader struct {
	tag   Tag
	dec   *bin.Decoder
	err   error
	field string
}

func (r *reader) fail(field string, err error) {
	if r.err == nil {
		r.err = err
		r.field = field
	}
}

func (r *reader) u8(field string) uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) u64(field string) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) boolean(field string) bool {
	switch v := r.u8(field); v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(field, fmt.Errorf("invalid boolean byte 0x%02x", v))
		return false
	}
}

func (r *reader) raw(field string, n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.fail(field, err)
		return make([]byte, n)
	}
	return b
}

func (r *reader) pubkey(field string) solana.PublicKey {
	return solana.PublicKeyFromBytes(r.raw(field, solana.PublicKeyLength))
}

func (r *reader) config() state.ReserveConfig {
	var cfg state.ReserveConfig
	cfg.OptimalUtilizationRate = r.u8("optimal_utilization_rate")
	cfg.LoanToValueRatio = r.u8("loan_to_value_ratio")
	cfg.LiquidationBonus = r.u8("liquidation_bonus")
	cfg.LiquidationThreshold = r.u8("liquidation_threshold")
	cfg.MinBorrowRate = r.u8("min_borrow_rate")
	cfg.OptimalBorrowRate = r.u8("optimal_borrow_rate")
	cfg.MaxBorrowRate = r.u8("max_borrow_rate")
	cfg.Fees.BorrowFeeWad = r.u64("borrow_fee_wad")
	cfg.Fees.ReserveOwnerFeeWad = r.u64("reserve_owner_fee_wad")
	cfg.Fees.FlashLoanFeeWad = r.u64("flash_loan_fee_wad")
	cfg.Fees.HostFeePercentage = r.u8("host_fee_percentage")
	return cfg
}

func (r *reader) done() error {
	if r.err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s.%s: %v", ErrDecode, r.tag, r.field, r.err)
}

// Decode parses instruction data. Bytes after the last fixed field are
// ignored, except for FlashLoan where they are the callback data.
func Decode(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	tag := Tag(data[0])
	r := &reader{tag: tag, dec: bin.NewBorshDecoder(data[1:])}

	var ix Instruction
	switch tag {
	case TagInitLendingMarket:
		var out InitLendingMarket
		out.Owner = r.pubkey("owner")
		copy(out.QuoteCurrency[:], r.raw("quote_currency", 32))
		ix = out
	case TagSetLendingMarketOwner:
		ix = SetLendingMarketOwner{NewOwner: r.pubkey("new_owner")}
	case TagInitReserve:
		var out InitReserve
		out.Config = r.config()
		out.TotalMiningSpeed = r.u64("total_mining_speed")
		out.KinkUtilRate = r.u64("kink_util_rate")
		out.UsePythOracle = r.boolean("use_pyth_oracle")
		out.IsLP = r.boolean("is_lp")
		ix = out
	case TagRefreshReserve:
		ix = RefreshReserve{}
	case TagDepositReserveLiquidity:
		ix = DepositReserveLiquidity{LiquidityAmount: r.u64("liquidity_amount")}
	case TagRedeemReserveCollateral:
		ix = RedeemReserveCollateral{CollateralAmount: r.u64("collateral_amount")}
	case TagInitObligation:
		ix = InitObligation{}
	case TagRefreshObligation:
		ix = RefreshObligation{}
	case TagDepositObligationCollateral:
		ix = DepositObligationCollateral{CollateralAmount: r.u64("collateral_amount")}
	case TagWithdrawObligationCollateral:
		ix = WithdrawObligationCollateral{CollateralAmount: r.u64("collateral_amount")}
	case TagBorrowObligationLiquidity:
		ix = BorrowObligationLiquidity{LiquidityAmount: r.u64("liquidity_amount")}
	case TagRepayObligationLiquidity:
		ix = RepayObligationLiquidity{LiquidityAmount: r.u64("liquidity_amount")}
	case TagLiquidateObligation:
		ix = LiquidateObligation{LiquidityAmount: r.u64("liquidity_amount")}
	case TagFlashLoan:
		out := FlashLoan{Amount: r.u64("amount")}
		if r.err == nil {
			out.CallbackData = append([]byte{}, data[1+amountLen:]...)
		}
		ix = out
	case TagSetReserveConfig:
		cfg := r.config()
		cfg.DepositPaused = r.boolean("deposit_paused")
		cfg.BorrowPaused = r.boolean("borrow_paused")
		cfg.LiquidationPaused = r.boolean("liquidation_paused")
		cfg.DepositLimit = r.u64("deposit_limit")
		ix = SetReserveConfig{Config: cfg}
	case TagInitMining:
		ix = InitMining{}
	case TagDepositMining:
		ix = DepositMining{Amount: r.u64("amount")}
	case TagWithdrawMining:
		ix = WithdrawMining{Amount: r.u64("amount")}
	case TagClaimMiningMine:
		ix = ClaimMiningMine{}
	case TagClaimObligationMine:
		ix = ClaimObligationMine{}
	case TagClaimOwnerFee:
		ix = ClaimOwnerFee{}
	case TagReceivePendingOwner:
		ix = ReceivePendingOwner{}
	case TagRefreshReserves:
		ix = RefreshReserves{}
	case TagLiquidateObligation2:
		ix = LiquidateObligation2{LiquidityAmount: r.u64("liquidity_amount")}
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrDecode, uint8(tag))
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return ix, nil
}

type writer struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func (w *writer) u8(v uint8) {
	if w.err == nil {
		w.err = w.enc.WriteUint8(v)
	}
}

func (w *writer) u64(v uint64) {
	if w.err == nil {
		w.err = w.enc.WriteUint64(v, bin.LE)
	}
}

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) raw(b []byte) {
	if w.err == nil && len(b) > 0 {
		w.err = w.enc.WriteBytes(b, false)
	}
}

func (w *writer) config(cfg *state.ReserveConfig) {
	w.u8(cfg.OptimalUtilizationRate)
	w.u8(cfg.LoanToValueRatio)
	w.u8(cfg.LiquidationBonus)
	w.u8(cfg.LiquidationThreshold)
	w.u8(cfg.MinBorrowRate)
	w.u8(cfg.OptimalBorrowRate)
	w.u8(cfg.MaxBorrowRate)
	w.u64(cfg.Fees.BorrowFeeWad)
	w.u64(cfg.Fees.ReserveOwnerFeeWad)
	w.u64(cfg.Fees.FlashLoanFeeWad)
	w.u8(cfg.Fees.HostFeePercentage)
}

// Encode serialises ix. It is the inverse of Decode.
func Encode(ix Instruction) ([]byte, error) {
	if ix == nil {
		return nil, fmt.Errorf("instruction: encode nil instruction")
	}
	w := &writer{}
	w.enc = bin.NewBorshEncoder(&w.buf)
	w.u8(uint8(ix.Tag()))

	switch v := ix.(type) {
	case InitLendingMarket:
		w.raw(v.Owner[:])
		w.raw(v.QuoteCurrency[:])
	case SetLendingMarketOwner:
		w.raw(v.NewOwner[:])
	case InitReserve:
		w.config(&v.Config)
		w.u64(v.TotalMiningSpeed)
		w.u64(v.KinkUtilRate)
		w.boolean(v.UsePythOracle)
		w.boolean(v.IsLP)
	case DepositReserveLiquidity:
		w.u64(v.LiquidityAmount)
	case RedeemReserveCollateral:
		w.u64(v.CollateralAmount)
	case DepositObligationCollateral:
		w.u64(v.CollateralAmount)
	case WithdrawObligationCollateral:
		w.u64(v.CollateralAmount)
	case BorrowObligationLiquidity:
		w.u64(v.LiquidityAmount)
	case RepayObligationLiquidity:
		w.u64(v.LiquidityAmount)
	case LiquidateObligation:
		w.u64(v.LiquidityAmount)
	case FlashLoan:
		w.u64(v.Amount)
		w.raw(v.CallbackData)
	case SetReserveConfig:
		w.config(&v.Config)
		w.boolean(v.Config.DepositPaused)
		w.boolean(v.Config.BorrowPaused)
		w.boolean(v.Config.LiquidationPaused)
		w.u64(v.Config.DepositLimit)
	case DepositMining:
		w.u64(v.Amount)
	case WithdrawMining:
		w.u64(v.Amount)
	case LiquidateObligation2:
		w.u64(v.LiquidityAmount)
	case RefreshReserve, InitObligation, RefreshObligation, InitMining, ClaimMiningMine,
		ClaimObligationMine, ClaimOwnerFee, ReceivePendingOwner, RefreshReserves:
	default:
		return nil, fmt.Errorf("instruction: cannot encode %T", ix)
	}
	if w.err != nil {
		return nil, fmt.Errorf("instruction: encode %s: %w", ix.Tag(), w.err)
	}
	return w.buf.Bytes(), nil
}
