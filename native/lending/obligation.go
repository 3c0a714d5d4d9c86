package lending

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
)

// AccrueInterest brings a borrow up to the reserve's cumulative borrow rate.
// A rate below the stored one is rejected; an equal rate is a no-op.
func AccrueInterest(liquidity *state.ObligationLiquidity, cumulativeRate wad.Decimal) error {
	switch cumulativeRate.Cmp(liquidity.CumulativeBorrowRateWad) {
	case -1:
		return ErrNegativeInterestRate
	case 0:
		return nil
	}
	grown, err := liquidity.BorrowedAmountWad.TryMul(cumulativeRate)
	if err != nil {
		return err
	}
	if grown, err = grown.TryDiv(liquidity.CumulativeBorrowRateWad); err != nil {
		return err
	}
	liquidity.BorrowedAmountWad = grown
	liquidity.CumulativeBorrowRateWad = cumulativeRate
	return nil
}

// settleMining adds amount*(index-entry) to unclaimed and returns the new
// total.
func settleMining(unclaimed, amount, index, entry wad.Decimal) (wad.Decimal, error) {
	if index.Cmp(entry) <= 0 {
		return unclaimed, nil
	}
	delta, err := index.TrySub(entry)
	if err != nil {
		return wad.Decimal{}, err
	}
	earned, err := amount.TryMul(delta)
	if err != nil {
		return wad.Decimal{}, err
	}
	return unclaimed.TryAdd(earned)
}

// ReserveLookup resolves the reserves an obligation refers to.
type ReserveLookup func(key solana.PublicKey) (*state.Reserve, bool)

// ReserveMap adapts a map to ReserveLookup.
func ReserveMap(reserves map[solana.PublicKey]*state.Reserve) ReserveLookup {
	return func(key solana.PublicKey) (*state.Reserve, bool) {
		r, ok := reserves[key]
		return r, ok
	}
}

func freshReserve(lookup ReserveLookup, key solana.PublicKey, currentSlot uint64) (*state.Reserve, error) {
	reserve, ok := lookup(key)
	if !ok || reserve == nil {
		return nil, fmt.Errorf("%w: reserve %s not supplied", ErrInvalidAccount, key)
	}
	if reserve.LastUpdate.IsStale(currentSlot) {
		return nil, fmt.Errorf("%w: %s", ErrReserveStale, key)
	}
	return reserve, nil
}

// RefreshObligation returns a copy of obligation revalued against reserves
// refreshed at currentSlot. Mining rewards are settled, borrows accrue
// interest, and the aggregate values are recomputed from scratch.
func RefreshObligation(obligation *state.Obligation, reserves ReserveLookup, currentSlot uint64) (*state.Obligation, error) {
	next := obligation.Clone()
	var (
		deposited = wad.Zero()
		borrowed  = wad.Zero()
		allowed   = wad.Zero()
		unhealthy = wad.Zero()
		unclaimed = next.UnclaimedMine
	)

	for i := range next.Deposits {
		deposit := &next.Deposits[i]
		reserve, err := freshReserve(reserves, deposit.DepositReserve, currentSlot)
		if err != nil {
			return nil, err
		}
		index := reserve.Bonus.LTokenMiningIndex
		if unclaimed, err = settleMining(unclaimed, wad.FromInteger(deposit.DepositedAmount), index, deposit.Index); err != nil {
			return nil, err
		}
		deposit.Index = index

		rate, err := ExchangeRate(reserve)
		if err != nil {
			return nil, err
		}
		liquidityAmount, err := rate.DecimalCollateralToLiquidity(wad.FromInteger(deposit.DepositedAmount))
		if err != nil {
			return nil, err
		}
		value, err := MarketValue(reserve, liquidityAmount)
		if err != nil {
			return nil, err
		}
		deposit.MarketValue = value

		if deposited, err = deposited.TryAdd(value); err != nil {
			return nil, err
		}
		ltvValue, err := value.TryMul(wad.FromPercent(reserve.Config.LoanToValueRatio))
		if err != nil {
			return nil, err
		}
		if allowed, err = allowed.TryAdd(ltvValue); err != nil {
			return nil, err
		}
		thresholdValue, err := value.TryMul(wad.FromPercent(reserve.Config.LiquidationThreshold))
		if err != nil {
			return nil, err
		}
		if unhealthy, err = unhealthy.TryAdd(thresholdValue); err != nil {
			return nil, err
		}
	}

	for i := range next.Borrows {
		borrow := &next.Borrows[i]
		reserve, err := freshReserve(reserves, borrow.BorrowReserve, currentSlot)
		if err != nil {
			return nil, err
		}
		index := reserve.Bonus.BorrowMiningIndex
		if unclaimed, err = settleMining(unclaimed, borrow.BorrowedAmountWad, index, borrow.Index); err != nil {
			return nil, err
		}
		borrow.Index = index

		if err := AccrueInterest(borrow, reserve.Liquidity.CumulativeBorrowRateWad); err != nil {
			return nil, err
		}
		value, err := MarketValue(reserve, borrow.BorrowedAmountWad)
		if err != nil {
			return nil, err
		}
		borrow.MarketValue = value
		if borrowed, err = borrowed.TryAdd(value); err != nil {
			return nil, err
		}
	}

	next.DepositedValue = deposited
	next.BorrowedValue = borrowed
	next.AllowedBorrowValue = allowed
	next.UnhealthyBorrowValue = unhealthy
	next.UnclaimedMine = unclaimed
	next.LastUpdate.Update(currentSlot)
	return next, nil
}

// IsHealthy reports whether the obligation is at or below its unhealthy
// borrow value.
func IsHealthy(obligation *state.Obligation) bool {
	return obligation.BorrowedValue.Cmp(obligation.UnhealthyBorrowValue) <= 0
}

// CalculateWithdraw sizes a collateral withdrawal from the deposit at index.
// The obligation must be fresh. MaxAmount withdraws as much as the remaining
// borrow capacity allows, which is the whole deposit when nothing is
// borrowed.
func CalculateWithdraw(obligation *state.Obligation, index int, amount uint64, loanToValue uint8) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	deposit := &obligation.Deposits[index]
	if deposit.DepositedAmount == 0 {
		return 0, ErrWithdrawTooLarge
	}
	if amount != MaxAmount && amount > deposit.DepositedAmount {
		return 0, ErrWithdrawTooLarge
	}
	if len(obligation.Borrows) == 0 || loanToValue == 0 {
		if amount == MaxAmount {
			return deposit.DepositedAmount, nil
		}
		return amount, nil
	}
	if deposit.MarketValue.IsZero() {
		// A worthless deposit carries no borrow capacity.
		if amount == MaxAmount {
			return deposit.DepositedAmount, nil
		}
		return amount, nil
	}

	ltv := wad.FromPercent(loanToValue)
	if amount == MaxAmount {
		maxValue, err := obligation.RemainingBorrowValue().TryDiv(ltv)
		if err != nil {
			return 0, err
		}
		portion, err := maxValue.TryDiv(deposit.MarketValue)
		if err != nil {
			return 0, err
		}
		withdrawDec, err := wad.FromInteger(deposit.DepositedAmount).TryMul(portion)
		if err != nil {
			return 0, err
		}
		withdraw := deposit.DepositedAmount
		if w, err := withdrawDec.TryFloorU64(); err == nil && w < withdraw {
			withdraw = w
		}
		if withdraw == 0 {
			return 0, ErrWithdrawTooLarge
		}
		return withdraw, nil
	}

	share, err := wad.FromInteger(amount).TryDiv(wad.FromInteger(deposit.DepositedAmount))
	if err != nil {
		return 0, err
	}
	value, err := deposit.MarketValue.TryMul(share)
	if err != nil {
		return 0, err
	}
	lost, err := value.TryMul(ltv)
	if err != nil {
		return 0, err
	}
	after, err := obligation.AllowedBorrowValue.TrySub(lost)
	if err != nil {
		after = wad.Zero()
	}
	if obligation.BorrowedValue.Cmp(after) > 0 {
		return 0, ErrWithdrawTooLarge
	}
	return amount, nil
}
