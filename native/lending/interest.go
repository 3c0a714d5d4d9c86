package lending

import (
	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
)

// InterestModel is the three-point borrow rate curve of a reserve.
type InterestModel struct {
	// OptimalUtilization is the utilisation where the curve changes slope.
	OptimalUtilization wad.Rate
	// MinRate is the APR at zero utilisation.
	MinRate wad.Rate
	// OptimalRate is the APR at optimal utilisation.
	OptimalRate wad.Rate
	// MaxRate is the APR at full utilisation.
	MaxRate wad.Rate
}

// NewInterestModel reads the curve out of a reserve config.
func NewInterestModel(cfg *state.ReserveConfig) InterestModel {
	return InterestModel{
		OptimalUtilization: wad.RateFromPercent(cfg.OptimalUtilizationRate),
		MinRate:            wad.RateFromPercent(cfg.MinBorrowRate),
		OptimalRate:        wad.RateFromPercent(cfg.OptimalBorrowRate),
		MaxRate:            wad.RateFromPercent(cfg.MaxBorrowRate),
	}
}

// BorrowRate interpolates the APR for a utilisation in [0, 1].
func (m InterestModel) BorrowRate(utilization wad.Rate) (wad.Rate, error) {
	if utilization.Cmp(m.OptimalUtilization) < 0 {
		// OptimalUtilization is non-zero here.
		normalized, err := utilization.TryDiv(m.OptimalUtilization)
		if err != nil {
			return wad.Rate{}, err
		}
		return lerp(m.MinRate, m.OptimalRate, normalized)
	}
	if m.OptimalUtilization.Cmp(wad.RateOne()) >= 0 {
		return m.MaxRate, nil
	}
	excess, err := utilization.TrySub(m.OptimalUtilization)
	if err != nil {
		return wad.Rate{}, err
	}
	span, err := wad.RateOne().TrySub(m.OptimalUtilization)
	if err != nil {
		return wad.Rate{}, err
	}
	normalized, err := excess.TryDiv(span)
	if err != nil {
		return wad.Rate{}, err
	}
	return lerp(m.OptimalRate, m.MaxRate, normalized)
}

// lerp returns lo + t*(hi-lo) for lo <= hi.
func lerp(lo, hi, t wad.Rate) (wad.Rate, error) {
	span, err := hi.TrySub(lo)
	if err != nil {
		return wad.Rate{}, err
	}
	step, err := span.TryMul(t)
	if err != nil {
		return wad.Rate{}, err
	}
	return lo.TryAdd(step)
}

// Utilization returns borrowed / (available + borrowed), zero for an empty
// pool.
func Utilization(liquidity *state.ReserveLiquidity) (wad.Rate, error) {
	if liquidity.BorrowedAmountWad.IsZero() {
		return wad.RateZero(), nil
	}
	total, err := wad.FromInteger(liquidity.AvailableAmount).TryAdd(liquidity.BorrowedAmountWad)
	if err != nil {
		return wad.Rate{}, err
	}
	util, err := liquidity.BorrowedAmountWad.TryDiv(total)
	if err != nil {
		return wad.Rate{}, err
	}
	return util.TryToRate()
}

// CurrentBorrowRate evaluates the reserve's curve at its current utilisation.
func CurrentBorrowRate(reserve *state.Reserve) (wad.Rate, error) {
	util, err := Utilization(&reserve.Liquidity)
	if err != nil {
		return wad.Rate{}, err
	}
	return NewInterestModel(&reserve.Config).BorrowRate(util)
}

// CompoundFactor returns (1 + apr/slotsPerYear)^slots.
func CompoundFactor(apr wad.Rate, slots, slotsPerYear uint64) (wad.Rate, error) {
	if slots == 0 || apr.IsZero() {
		return wad.RateOne(), nil
	}
	perSlot, err := apr.TryDivInt(slotsPerYear)
	if err != nil {
		return wad.Rate{}, err
	}
	base, err := wad.RateOne().TryAdd(perSlot)
	if err != nil {
		return wad.Rate{}, err
	}
	return base.TryPow(slots)
}

// AccrueReserveInterest compounds the reserve's debt over slots and routes
// the owner's share of the new interest into OwnerUnclaimed. The reserve is
// only modified on success.
func AccrueReserveInterest(reserve *state.Reserve, slots, slotsPerYear uint64) error {
	if slots == 0 {
		return nil
	}
	apr, err := CurrentBorrowRate(reserve)
	if err != nil {
		return err
	}
	factor, err := CompoundFactor(apr, slots, slotsPerYear)
	if err != nil {
		return err
	}
	growth := factor.ToDecimal()
	liq := reserve.Liquidity
	cumulative, err := liq.CumulativeBorrowRateWad.TryMul(growth)
	if err != nil {
		return err
	}
	borrowed, err := liq.BorrowedAmountWad.TryMul(growth)
	if err != nil {
		return err
	}
	interest, err := borrowed.TrySub(liq.BorrowedAmountWad)
	if err != nil {
		return err
	}
	ownerFee, err := interest.TryMul(wad.FromScaledUint64(reserve.Config.Fees.ReserveOwnerFeeWad))
	if err != nil {
		return err
	}
	unclaimed, err := liq.OwnerUnclaimed.TryAdd(ownerFee)
	if err != nil {
		return err
	}
	reserve.Liquidity.CumulativeBorrowRateWad = cumulative
	reserve.Liquidity.BorrowedAmountWad = borrowed
	reserve.Liquidity.OwnerUnclaimed = unclaimed
	return nil
}

// MiningSpeeds splits the reserve's per-slot reward between suppliers and
// borrowers. Below the kink borrowers earn speed*utilization; at or above it
// the reward splits evenly.
func MiningSpeeds(reserve *state.Reserve) (supply, borrow wad.Decimal, err error) {
	speed := wad.FromInteger(reserve.Bonus.TotalMiningSpeed)
	if speed.IsZero() {
		return wad.Zero(), wad.Zero(), nil
	}
	util, err := Utilization(&reserve.Liquidity)
	if err != nil {
		return wad.Decimal{}, wad.Decimal{}, err
	}
	kink := wad.RateFromScaledUint64(reserve.Bonus.KinkUtilRate)
	if util.Cmp(kink) < 0 {
		borrow, err = speed.TryMul(util.ToDecimal())
	} else {
		borrow, err = speed.TryDivInt(2)
	}
	if err != nil {
		return wad.Decimal{}, wad.Decimal{}, err
	}
	supply, err = speed.TrySub(borrow)
	if err != nil {
		return wad.Decimal{}, wad.Decimal{}, err
	}
	return supply, borrow, nil
}

// AccrueMining advances the L-token and borrow mining indices over slots.
// A side with an empty pool keeps its index.
func AccrueMining(reserve *state.Reserve, slots uint64) error {
	if slots == 0 || reserve.Bonus.TotalMiningSpeed == 0 {
		return nil
	}
	supplySpeed, borrowSpeed, err := MiningSpeeds(reserve)
	if err != nil {
		return err
	}
	lIndex := reserve.Bonus.LTokenMiningIndex
	if supply := reserve.Collateral.MintTotalSupply; supply > 0 {
		delta, err := supplySpeed.TryMulInt(slots)
		if err != nil {
			return err
		}
		if delta, err = delta.TryDivInt(supply); err != nil {
			return err
		}
		if lIndex, err = lIndex.TryAdd(delta); err != nil {
			return err
		}
	}
	bIndex := reserve.Bonus.BorrowMiningIndex
	if borrowed := reserve.Liquidity.BorrowedAmountWad; !borrowed.IsZero() {
		delta, err := borrowSpeed.TryMulInt(slots)
		if err != nil {
			return err
		}
		if delta, err = delta.TryDiv(borrowed); err != nil {
			return err
		}
		if bIndex, err = bIndex.TryAdd(delta); err != nil {
			return err
		}
	}
	reserve.Bonus.LTokenMiningIndex = lIndex
	reserve.Bonus.BorrowMiningIndex = bIndex
	return nil
}

// RefreshReserve returns a copy of reserve advanced to currentSlot: the
// oracle price is applied, mining indices and interest accrue over the
// elapsed slots, and the reserve is marked fresh. On error the input is
// untouched and no copy is returned.
func RefreshReserve(reserve *state.Reserve, currentSlot uint64, price wad.Decimal, slotsPerYear uint64) (*state.Reserve, error) {
	slots, err := reserve.LastUpdate.SlotsElapsed(currentSlot)
	if err != nil {
		return nil, err
	}
	next := reserve.Clone()
	next.Liquidity.MarketPrice = price
	if slots > 0 {
		// Mining splits on the utilisation the pool held during the elapsed
		// slots, so it runs before interest moves the borrowed amount.
		if err := AccrueMining(next, slots); err != nil {
			return nil, err
		}
		if err := AccrueReserveInterest(next, slots, slotsPerYear); err != nil {
			return nil, err
		}
	}
	next.LastUpdate.Update(currentSlot)
	return next, nil
}
