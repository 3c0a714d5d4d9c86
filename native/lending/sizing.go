package lending

import (
	"math"

	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
)

// MaxAmount requests "all of it" in amount fields: the full deposit on
// withdraw, the full capacity on borrow, the full debt on repay and the
// largest eligible amount on liquidation.
const MaxAmount uint64 = math.MaxUint64

// FeeBreakdown splits a fee between the reserve owner and a host.
type FeeBreakdown struct {
	Total uint64
	Host  uint64
}

// Owner returns the part of the fee kept by the reserve owner.
func (f FeeBreakdown) Owner() uint64 { return f.Total - f.Host }

// calculateFees computes an exclusive fee on amount. Any non-zero fee rate
// charges at least one token because the fee rounds up.
func calculateFees(amount, feeWad uint64, hostPercentage uint8) (FeeBreakdown, error) {
	if amount == 0 || feeWad == 0 {
		return FeeBreakdown{}, nil
	}
	fee, err := wad.FromInteger(amount).TryMul(wad.FromScaledUint64(feeWad))
	if err != nil {
		return FeeBreakdown{}, err
	}
	total, err := fee.TryCeilU64()
	if err != nil {
		return FeeBreakdown{}, err
	}
	var host uint64
	if hostPercentage > 0 {
		hostFee, err := wad.FromInteger(total).TryMul(wad.FromPercent(hostPercentage))
		if err != nil {
			return FeeBreakdown{}, err
		}
		if host, err = hostFee.TryFloorU64(); err != nil {
			return FeeBreakdown{}, err
		}
	}
	return FeeBreakdown{Total: total, Host: host}, nil
}

// CalculateBorrowFees returns the origination fee for borrowing amount.
func CalculateBorrowFees(fees *state.ReserveFees, amount uint64) (FeeBreakdown, error) {
	return calculateFees(amount, fees.BorrowFeeWad, fees.HostFeePercentage)
}

// CalculateFlashLoanFees returns the fee owed on top of a flash loan.
func CalculateFlashLoanFees(fees *state.ReserveFees, amount uint64) (FeeBreakdown, error) {
	return calculateFees(amount, fees.FlashLoanFeeWad, fees.HostFeePercentage)
}

// BorrowResult sizes a borrow. BorrowAmount is debited from the reserve and
// added to the obligation's debt; ReceiveAmount reaches the borrower.
type BorrowResult struct {
	BorrowAmount  wad.Decimal
	ReceiveAmount uint64
	Fees          FeeBreakdown
}

// CalculateBorrow sizes a borrow of amount against remainingValue, the
// obligation's unused borrow capacity in quote currency.
func CalculateBorrow(reserve *state.Reserve, amount uint64, remainingValue wad.Decimal) (BorrowResult, error) {
	if amount == 0 {
		return BorrowResult{}, ErrInvalidAmount
	}
	if amount == MaxAmount {
		return calculateMaxBorrow(reserve, remainingValue)
	}
	fees, err := CalculateBorrowFees(&reserve.Config.Fees, amount)
	if err != nil {
		return BorrowResult{}, err
	}
	total := amount + fees.Total
	if total < amount {
		return BorrowResult{}, ErrMathOverflow
	}
	if total > reserve.Liquidity.AvailableAmount {
		return BorrowResult{}, ErrInsufficientLiquidity
	}
	value, err := MarketValue(reserve, wad.FromInteger(total))
	if err != nil {
		return BorrowResult{}, err
	}
	if value.Cmp(remainingValue) > 0 {
		return BorrowResult{}, ErrInsufficientCollateral
	}
	return BorrowResult{
		BorrowAmount:  wad.FromInteger(total),
		ReceiveAmount: amount,
		Fees:          fees,
	}, nil
}

func calculateMaxBorrow(reserve *state.Reserve, remainingValue wad.Decimal) (BorrowResult, error) {
	available := reserve.Liquidity.AvailableAmount
	ceiling := available
	maxLiquidity, err := LiquidityForValue(reserve, remainingValue)
	if err != nil {
		return BorrowResult{}, err
	}
	if capped, err := maxLiquidity.TryFloorU64(); err == nil && capped < ceiling {
		ceiling = capped
	}
	onePlusFee, err := wad.One().TryAdd(wad.FromScaledUint64(reserve.Config.Fees.BorrowFeeWad))
	if err != nil {
		return BorrowResult{}, err
	}
	receiveDec, err := wad.FromInteger(ceiling).TryDiv(onePlusFee)
	if err != nil {
		return BorrowResult{}, err
	}
	receive, err := receiveDec.TryFloorU64()
	if err != nil {
		return BorrowResult{}, err
	}
	var fees FeeBreakdown
	for receive > 0 {
		if fees, err = CalculateBorrowFees(&reserve.Config.Fees, receive); err != nil {
			return BorrowResult{}, err
		}
		if receive+fees.Total <= ceiling {
			break
		}
		receive--
	}
	if receive == 0 {
		if available == 0 {
			return BorrowResult{}, ErrInsufficientLiquidity
		}
		return BorrowResult{}, ErrInsufficientCollateral
	}
	return BorrowResult{
		BorrowAmount:  wad.FromInteger(receive + fees.Total),
		ReceiveAmount: receive,
		Fees:          fees,
	}, nil
}

// RepayResult sizes a repayment. SettleAmount leaves the debt; RepayAmount is
// collected from the payer and is never below SettleAmount.
type RepayResult struct {
	SettleAmount wad.Decimal
	RepayAmount  uint64
}

// CalculateRepay sizes a repayment of amount against borrowed. A remainder
// below LiquidationCloseAmount is folded into the repayment.
func CalculateRepay(amount uint64, borrowed wad.Decimal) (RepayResult, error) {
	if amount == 0 || borrowed.IsZero() {
		return RepayResult{}, ErrInvalidAmount
	}
	settle := borrowed
	if amount != MaxAmount {
		settle = wad.Min(wad.FromInteger(amount), borrowed)
	}
	remaining, err := borrowed.TrySub(settle)
	if err != nil {
		return RepayResult{}, err
	}
	if !remaining.IsZero() && remaining.Cmp(wad.FromInteger(state.LiquidationCloseAmount)) < 0 {
		settle = borrowed
	}
	repay, err := settle.TryCeilU64()
	if err != nil {
		return RepayResult{}, err
	}
	return RepayResult{SettleAmount: settle, RepayAmount: repay}, nil
}

// LiquidationResult sizes a liquidation: SettleAmount of debt is cleared,
// RepayAmount is collected from the liquidator and WithdrawAmount collateral
// is released to them.
type LiquidationResult struct {
	SettleAmount   wad.Decimal
	RepayAmount    uint64
	WithdrawAmount uint64
}

// CalculateLiquidation sizes the liquidation of one borrow against one
// deposit. Both entries must carry market values from a refresh at the
// current slot. The liquidated share is capped by the close factor, except
// that a borrow below LiquidationCloseAmount is settled whole. When the
// bonus-scaled value exceeds the deposit the whole deposit is taken and the
// settled debt shrinks to what it covers.
func CalculateLiquidation(amount uint64, liquidity *state.ObligationLiquidity, collateral *state.ObligationCollateral, bonusPercent uint8) (LiquidationResult, error) {
	if amount == 0 {
		return LiquidationResult{}, ErrInvalidAmount
	}
	borrowed := liquidity.BorrowedAmountWad
	if borrowed.IsZero() || collateral.DepositedAmount == 0 {
		return LiquidationResult{}, ErrLiquidationTooSmall
	}
	bonus, err := wad.One().TryAdd(wad.FromPercent(bonusPercent))
	if err != nil {
		return LiquidationResult{}, err
	}

	liquidationAmount := borrowed
	if borrowed.Cmp(wad.FromInteger(state.LiquidationCloseAmount)) >= 0 {
		maxLiquidation, err := borrowed.TryMul(wad.FromPercent(state.LiquidationCloseFactor))
		if err != nil {
			return LiquidationResult{}, err
		}
		requested := borrowed
		if amount != MaxAmount {
			requested = wad.FromInteger(amount)
		}
		liquidationAmount = wad.Min(requested, maxLiquidation)
	}

	share, err := liquidationAmount.TryDiv(borrowed)
	if err != nil {
		return LiquidationResult{}, err
	}
	value, err := liquidity.MarketValue.TryMul(share)
	if err != nil {
		return LiquidationResult{}, err
	}
	if value, err = value.TryMul(bonus); err != nil {
		return LiquidationResult{}, err
	}

	var (
		settle   wad.Decimal
		withdraw uint64
	)
	switch value.Cmp(collateral.MarketValue) {
	case 1:
		covered, err := collateral.MarketValue.TryDiv(value)
		if err != nil {
			return LiquidationResult{}, err
		}
		if settle, err = liquidationAmount.TryMul(covered); err != nil {
			return LiquidationResult{}, err
		}
		withdraw = collateral.DepositedAmount
	case 0:
		settle = liquidationAmount
		withdraw = collateral.DepositedAmount
	default:
		settle = liquidationAmount
		portion, err := value.TryDiv(collateral.MarketValue)
		if err != nil {
			return LiquidationResult{}, err
		}
		withdrawDec, err := wad.FromInteger(collateral.DepositedAmount).TryMul(portion)
		if err != nil {
			return LiquidationResult{}, err
		}
		if withdraw, err = withdrawDec.TryFloorU64(); err != nil {
			return LiquidationResult{}, err
		}
	}

	repay, err := settle.TryCeilU64()
	if err != nil {
		return LiquidationResult{}, err
	}
	if repay == 0 || withdraw == 0 {
		return LiquidationResult{}, ErrLiquidationTooSmall
	}
	return LiquidationResult{SettleAmount: settle, RepayAmount: repay, WithdrawAmount: withdraw}, nil
}
