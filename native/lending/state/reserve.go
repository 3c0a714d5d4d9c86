package state

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/wad"
)

// ReserveLen is the persisted size of a Reserve including the host fee
// receiver slab.
const ReserveLen = 713 + pubkeyLen*HostFeeReceiverCount

const reservePadding = 239

// ReserveLiquidity is the borrowable side of a reserve.
type ReserveLiquidity struct {
	MintPubkey    solana.PublicKey
	MintDecimals  uint8
	SupplyPubkey  solana.PublicKey
	FeeReceiver   solana.PublicKey
	UsePythOracle bool
	// OracleParams1 is the pyth price account, or the bridge pool for LP mints.
	OracleParams1 solana.PublicKey
	// OracleParams2 is the fallback oracle account, or the LP price account.
	OracleParams2           solana.PublicKey
	AvailableAmount         uint64
	BorrowedAmountWad       wad.Decimal
	CumulativeBorrowRateWad wad.Decimal
	MarketPrice             wad.Decimal
	OwnerUnclaimed          wad.Decimal
	IsLP                    bool
}

// OracleAccount returns the account the price is read from.
func (l *ReserveLiquidity) OracleAccount() solana.PublicKey {
	if l.UsePythOracle {
		return l.OracleParams1
	}
	return l.OracleParams2
}

// TotalSupply returns the liquidity owed to collateral holders.
func (l *ReserveLiquidity) TotalSupply() (wad.Decimal, error) {
	total, err := wad.FromInteger(l.AvailableAmount).TryAdd(l.BorrowedAmountWad)
	if err != nil {
		return wad.Decimal{}, err
	}
	return total.TrySub(l.OwnerUnclaimed)
}

// Deposit adds liquidity to the pool.
func (l *ReserveLiquidity) Deposit(amount uint64) error {
	sum := l.AvailableAmount + amount
	if sum < l.AvailableAmount {
		return wad.ErrMathOverflow
	}
	l.AvailableAmount = sum
	return nil
}

// Withdraw removes liquidity from the pool.
func (l *ReserveLiquidity) Withdraw(amount uint64) error {
	if amount > l.AvailableAmount {
		return ErrInsufficientLiquidity
	}
	l.AvailableAmount -= amount
	return nil
}

// Borrow moves amount out of the pool and books the debt.
func (l *ReserveLiquidity) Borrow(debt wad.Decimal, amount uint64) error {
	if amount > l.AvailableAmount {
		return ErrInsufficientLiquidity
	}
	borrowed, err := l.BorrowedAmountWad.TryAdd(debt)
	if err != nil {
		return err
	}
	l.AvailableAmount -= amount
	l.BorrowedAmountWad = borrowed
	return nil
}

// Repay returns amount tokens to the pool and settles debt.
func (l *ReserveLiquidity) Repay(amount uint64, settle wad.Decimal) error {
	available := l.AvailableAmount + amount
	if available < l.AvailableAmount {
		return wad.ErrMathOverflow
	}
	borrowed, err := l.BorrowedAmountWad.TrySub(settle)
	if err != nil {
		// Rounding in per-obligation accrual can leave the pool a few wads
		// behind the sum of its borrowers.
		borrowed = wad.Zero()
	}
	l.AvailableAmount = available
	l.BorrowedAmountWad = borrowed
	return nil
}

// ReserveCollateral is the L-token side of a reserve.
type ReserveCollateral struct {
	MintPubkey      solana.PublicKey
	MintTotalSupply uint64
	SupplyPubkey    solana.PublicKey
}

// Mint records newly issued collateral tokens.
func (c *ReserveCollateral) Mint(amount uint64) error {
	sum := c.MintTotalSupply + amount
	if sum < c.MintTotalSupply {
		return wad.ErrMathOverflow
	}
	c.MintTotalSupply = sum
	return nil
}

// Burn records destroyed collateral tokens.
func (c *ReserveCollateral) Burn(amount uint64) error {
	if amount > c.MintTotalSupply {
		return wad.ErrMathOverflow
	}
	c.MintTotalSupply -= amount
	return nil
}

// ReserveFees is the fee schedule of a reserve. Wad fields are fractions
// scaled by 1e18.
type ReserveFees struct {
	BorrowFeeWad       uint64
	ReserveOwnerFeeWad uint64
	FlashLoanFeeWad    uint64
	HostFeePercentage  uint8
	HostFeeReceivers   []solana.PublicKey
}

// ReserveConfig holds the owner controlled risk parameters. Percentages are
// whole numbers in [0, 100].
type ReserveConfig struct {
	OptimalUtilizationRate uint8
	LoanToValueRatio       uint8
	LiquidationBonus       uint8
	LiquidationThreshold   uint8
	MinBorrowRate          uint8
	OptimalBorrowRate      uint8
	MaxBorrowRate          uint8
	Fees                   ReserveFees
	DepositPaused          bool
	BorrowPaused           bool
	LiquidationPaused      bool
	// DepositLimit caps total liquidity; zero means unlimited.
	DepositLimit uint64
}

// Validate checks the ranges and curve ordering of the config.
func (c *ReserveConfig) Validate() error {
	switch {
	case c.OptimalUtilizationRate > 100:
		return fmt.Errorf("%w: optimal utilization rate %d above 100", ErrInvalidConfig, c.OptimalUtilizationRate)
	case c.LiquidationThreshold > 100:
		return fmt.Errorf("%w: liquidation threshold %d above 100", ErrInvalidConfig, c.LiquidationThreshold)
	case c.LoanToValueRatio >= c.LiquidationThreshold:
		return fmt.Errorf("%w: loan to value %d must be below liquidation threshold %d", ErrInvalidConfig, c.LoanToValueRatio, c.LiquidationThreshold)
	case c.LiquidationBonus > 100:
		return fmt.Errorf("%w: liquidation bonus %d above 100", ErrInvalidConfig, c.LiquidationBonus)
	case c.MinBorrowRate > c.OptimalBorrowRate:
		return fmt.Errorf("%w: min borrow rate %d above optimal %d", ErrInvalidConfig, c.MinBorrowRate, c.OptimalBorrowRate)
	case c.OptimalBorrowRate > c.MaxBorrowRate:
		return fmt.Errorf("%w: optimal borrow rate %d above max %d", ErrInvalidConfig, c.OptimalBorrowRate, c.MaxBorrowRate)
	case c.Fees.BorrowFeeWad > wad.WAD:
		return fmt.Errorf("%w: borrow fee above 1", ErrInvalidConfig)
	case c.Fees.ReserveOwnerFeeWad > wad.WAD:
		return fmt.Errorf("%w: reserve owner fee above 1", ErrInvalidConfig)
	case c.Fees.FlashLoanFeeWad > wad.WAD:
		return fmt.Errorf("%w: flash loan fee above 1", ErrInvalidConfig)
	case c.Fees.HostFeePercentage > 100:
		return fmt.Errorf("%w: host fee percentage %d above 100", ErrInvalidConfig, c.Fees.HostFeePercentage)
	case len(c.Fees.HostFeeReceivers) > HostFeeReceiverCount:
		return fmt.Errorf("%w: %d host fee receivers, capacity %d", ErrInvalidConfig, len(c.Fees.HostFeeReceivers), HostFeeReceiverCount)
	}
	return nil
}

// IsPaused reports whether action is disabled for the reserve. Unknown
// actions are never paused.
func (c *ReserveConfig) IsPaused(action string) bool {
	switch action {
	case ActionDeposit:
		return c.DepositPaused
	case ActionBorrow:
		return c.BorrowPaused
	case ActionLiquidation:
		return c.LiquidationPaused
	default:
		return false
	}
}

// IsHostFeeReceiver reports whether key may collect host fees.
func (c *ReserveConfig) IsHostFeeReceiver(key solana.PublicKey) bool {
	for _, r := range c.Fees.HostFeeReceivers {
		if r.Equals(key) {
			return true
		}
	}
	return false
}

// Bonus tracks mining reward accrual for suppliers and borrowers.
type Bonus struct {
	UnCollSupplyAccount solana.PublicKey
	LTokenMiningIndex   wad.Decimal
	BorrowMiningIndex   wad.Decimal
	// TotalMiningSpeed is the reward emitted per slot across both sides.
	TotalMiningSpeed uint64
	// KinkUtilRate is the utilization, as a wad fraction, above which the
	// reward splits evenly between suppliers and borrowers.
	KinkUtilRate uint64
}

// Reserve is one listed asset of a market.
type Reserve struct {
	Version       uint8
	LastUpdate    LastUpdate
	LendingMarket solana.PublicKey
	Liquidity     ReserveLiquidity
	Collateral    ReserveCollateral
	Config        ReserveConfig
	Bonus         Bonus
	ReentryLock   bool
}

// InitReserveParams carries everything fixed at reserve creation.
type InitReserveParams struct {
	CurrentSlot   uint64
	LendingMarket solana.PublicKey
	Liquidity     ReserveLiquidity
	Collateral    ReserveCollateral
	Config        ReserveConfig
	Bonus         Bonus
}

// NewReserve validates the config and returns an initialised reserve. The
// cumulative borrow rate starts at one.
func NewReserve(params InitReserveParams) (*Reserve, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	liquidity := params.Liquidity
	liquidity.AvailableAmount = 0
	liquidity.BorrowedAmountWad = wad.Zero()
	liquidity.CumulativeBorrowRateWad = wad.One()
	liquidity.OwnerUnclaimed = wad.Zero()
	collateral := params.Collateral
	collateral.MintTotalSupply = 0
	bonus := params.Bonus
	bonus.LTokenMiningIndex = wad.Zero()
	bonus.BorrowMiningIndex = wad.Zero()
	r := &Reserve{
		Version:       ProgramVersion,
		LastUpdate:    NewLastUpdate(params.CurrentSlot),
		LendingMarket: params.LendingMarket,
		Liquidity:     liquidity,
		Collateral:    collateral,
		Config:        params.Config,
		Bonus:         bonus,
	}
	r.Config.Fees.HostFeeReceivers = cloneKeys(params.Config.Fees.HostFeeReceivers)
	return r, nil
}

// IsInitialized reports whether the record has been created.
func (r *Reserve) IsInitialized() bool {
	return r != nil && r.Version != UninitializedVersion
}

// Clone returns a deep copy of the reserve.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Config.Fees.HostFeeReceivers = cloneKeys(r.Config.Fees.HostFeeReceivers)
	return &clone
}

func cloneKeys(keys []solana.PublicKey) []solana.PublicKey {
	if len(keys) == 0 {
		return nil
	}
	out := make([]solana.PublicKey, len(keys))
	copy(out, keys)
	return out
}

// MarshalBinary encodes the reserve into its fixed layout. Unused host fee
// receiver slots are zeroed.
func (r *Reserve) MarshalBinary() ([]byte, error) {
	receivers := r.Config.Fees.HostFeeReceivers
	if len(receivers) > HostFeeReceiverCount {
		return nil, fmt.Errorf("state: encode reserve: %w: %d host fee receivers", ErrInvalidConfig, len(receivers))
	}
	w := newRecordWriter(ReserveLen)
	w.u8(r.Version)
	w.u64(r.LastUpdate.Slot)
	w.boolean(r.LastUpdate.Stale)
	w.pubkey(r.LendingMarket)

	liq := &r.Liquidity
	w.pubkey(liq.MintPubkey)
	w.u8(liq.MintDecimals)
	w.pubkey(liq.SupplyPubkey)
	w.pubkey(liq.FeeReceiver)
	w.boolean(liq.UsePythOracle)
	w.pubkey(liq.OracleParams1)
	w.pubkey(liq.OracleParams2)
	w.u64(liq.AvailableAmount)
	w.decimal(liq.BorrowedAmountWad)
	w.decimal(liq.CumulativeBorrowRateWad)
	w.decimal(liq.MarketPrice)
	w.decimal(liq.OwnerUnclaimed)

	w.pubkey(r.Collateral.MintPubkey)
	w.u64(r.Collateral.MintTotalSupply)
	w.pubkey(r.Collateral.SupplyPubkey)

	cfg := &r.Config
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
	w.u8(uint8(len(receivers)))
	for _, key := range receivers {
		w.pubkey(key)
	}
	w.zeros(pubkeyLen * (HostFeeReceiverCount - len(receivers)))
	w.boolean(cfg.DepositPaused)
	w.boolean(cfg.BorrowPaused)
	w.boolean(cfg.LiquidationPaused)

	w.pubkey(r.Bonus.UnCollSupplyAccount)
	w.decimal(r.Bonus.LTokenMiningIndex)
	w.decimal(r.Bonus.BorrowMiningIndex)
	w.u64(r.Bonus.TotalMiningSpeed)
	w.u64(r.Bonus.KinkUtilRate)

	w.boolean(r.ReentryLock)
	w.u64(cfg.DepositLimit)
	w.boolean(liq.IsLP)
	w.zeros(reservePadding)
	return w.finish("reserve", ReserveLen)
}

// UnmarshalBinary decodes a reserve record.
func (r *Reserve) UnmarshalBinary(data []byte) error {
	rd, err := newRecordReader("reserve", data, ReserveLen)
	if err != nil {
		return err
	}
	var out Reserve
	out.Version = rd.version()
	out.LastUpdate.Slot = rd.u64("last_update.slot")
	out.LastUpdate.Stale = rd.boolean("last_update.stale")
	out.LendingMarket = rd.pubkey("lending_market")

	liq := &out.Liquidity
	liq.MintPubkey = rd.pubkey("liquidity.mint")
	liq.MintDecimals = rd.u8("liquidity.mint_decimals")
	liq.SupplyPubkey = rd.pubkey("liquidity.supply")
	liq.FeeReceiver = rd.pubkey("liquidity.fee_receiver")
	liq.UsePythOracle = rd.boolean("liquidity.use_pyth_oracle")
	liq.OracleParams1 = rd.pubkey("liquidity.params_1")
	liq.OracleParams2 = rd.pubkey("liquidity.params_2")
	liq.AvailableAmount = rd.u64("liquidity.available_amount")
	liq.BorrowedAmountWad = rd.decimal("liquidity.borrowed_amount")
	liq.CumulativeBorrowRateWad = rd.decimal("liquidity.cumulative_borrow_rate")
	liq.MarketPrice = rd.decimal("liquidity.market_price")
	liq.OwnerUnclaimed = rd.decimal("liquidity.owner_unclaimed")

	out.Collateral.MintPubkey = rd.pubkey("collateral.mint")
	out.Collateral.MintTotalSupply = rd.u64("collateral.mint_total_supply")
	out.Collateral.SupplyPubkey = rd.pubkey("collateral.supply")

	cfg := &out.Config
	cfg.OptimalUtilizationRate = rd.u8("config.optimal_utilization_rate")
	cfg.LoanToValueRatio = rd.u8("config.loan_to_value_ratio")
	cfg.LiquidationBonus = rd.u8("config.liquidation_bonus")
	cfg.LiquidationThreshold = rd.u8("config.liquidation_threshold")
	cfg.MinBorrowRate = rd.u8("config.min_borrow_rate")
	cfg.OptimalBorrowRate = rd.u8("config.optimal_borrow_rate")
	cfg.MaxBorrowRate = rd.u8("config.max_borrow_rate")
	cfg.Fees.BorrowFeeWad = rd.u64("config.fees.borrow_fee")
	cfg.Fees.ReserveOwnerFeeWad = rd.u64("config.fees.reserve_owner_fee")
	cfg.Fees.FlashLoanFeeWad = rd.u64("config.fees.flash_loan_fee")
	cfg.Fees.HostFeePercentage = rd.u8("config.fees.host_fee_percentage")
	count := int(rd.u8("config.fees.host_fee_receiver_count"))
	if count > HostFeeReceiverCount {
		rd.fail("config.fees.host_fee_receiver_count", fmt.Errorf("count %d above capacity %d", count, HostFeeReceiverCount))
	}
	for i := 0; i < HostFeeReceiverCount; i++ {
		key := rd.pubkey("config.fees.host_fee_receivers")
		if i < count {
			cfg.Fees.HostFeeReceivers = append(cfg.Fees.HostFeeReceivers, key)
		}
	}
	cfg.DepositPaused = rd.boolean("config.deposit_paused")
	cfg.BorrowPaused = rd.boolean("config.borrow_paused")
	cfg.LiquidationPaused = rd.boolean("config.liquidation_paused")

	out.Bonus.UnCollSupplyAccount = rd.pubkey("bonus.un_coll_supply_account")
	out.Bonus.LTokenMiningIndex = rd.decimal("bonus.l_token_mining_index")
	out.Bonus.BorrowMiningIndex = rd.decimal("bonus.borrow_mining_index")
	out.Bonus.TotalMiningSpeed = rd.u64("bonus.total_mining_speed")
	out.Bonus.KinkUtilRate = rd.u64("bonus.kink_util_rate")

	out.ReentryLock = rd.boolean("reentry_lock")
	cfg.DepositLimit = rd.u64("config.deposit_limit")
	liq.IsLP = rd.boolean("liquidity.is_lp")
	rd.skip("padding", reservePadding)
	if err := rd.done(); err != nil {
		return err
	}
	*r = out
	return nil
}

// DecodeReserve is a convenience wrapper around UnmarshalBinary.
func DecodeReserve(data []byte) (*Reserve, error) {
	r := new(Reserve)
	if err := r.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return r, nil
}
