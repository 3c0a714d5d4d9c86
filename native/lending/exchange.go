package lending

import (
	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
)

// CollateralExchangeRate converts between liquidity and the reserve's
// collateral tokens. Rate is collateral per unit of liquidity.
type CollateralExchangeRate struct {
	rate wad.Rate
}

// ExchangeRate returns mintTotalSupply / totalLiquidity, or the initial ratio
// when either side is empty.
func ExchangeRate(reserve *state.Reserve) (CollateralExchangeRate, error) {
	total, err := reserve.Liquidity.TotalSupply()
	if err != nil {
		return CollateralExchangeRate{}, err
	}
	if reserve.Collateral.MintTotalSupply == 0 || total.IsZero() {
		initial, err := wad.RateOne().TryMulInt(state.InitialCollateralRatio)
		if err != nil {
			return CollateralExchangeRate{}, err
		}
		return CollateralExchangeRate{rate: initial}, nil
	}
	ratio, err := wad.FromInteger(reserve.Collateral.MintTotalSupply).TryDiv(total)
	if err != nil {
		return CollateralExchangeRate{}, err
	}
	rate, err := ratio.TryToRate()
	if err != nil {
		return CollateralExchangeRate{}, err
	}
	return CollateralExchangeRate{rate: rate}, nil
}

// Rate exposes the underlying ratio.
func (x CollateralExchangeRate) Rate() wad.Rate { return x.rate }

// CollateralToLiquidity converts collateral tokens to liquidity, rounding
// down.
func (x CollateralExchangeRate) CollateralToLiquidity(collateral uint64) (uint64, error) {
	amount, err := x.DecimalCollateralToLiquidity(wad.FromInteger(collateral))
	if err != nil {
		return 0, err
	}
	return amount.TryFloorU64()
}

// DecimalCollateralToLiquidity converts a fractional collateral amount.
func (x CollateralExchangeRate) DecimalCollateralToLiquidity(collateral wad.Decimal) (wad.Decimal, error) {
	return collateral.TryDiv(x.rate.ToDecimal())
}

// LiquidityToCollateral converts liquidity to collateral tokens, rounding
// down.
func (x CollateralExchangeRate) LiquidityToCollateral(liquidity uint64) (uint64, error) {
	amount, err := x.DecimalLiquidityToCollateral(wad.FromInteger(liquidity))
	if err != nil {
		return 0, err
	}
	return amount.TryFloorU64()
}

// DecimalLiquidityToCollateral converts a fractional liquidity amount.
func (x CollateralExchangeRate) DecimalLiquidityToCollateral(liquidity wad.Decimal) (wad.Decimal, error) {
	return liquidity.TryMul(x.rate.ToDecimal())
}

// decimalsFactor returns 10^decimals.
func decimalsFactor(decimals uint8) (uint64, error) {
	if decimals > 19 {
		return 0, wad.ErrMathOverflow
	}
	factor := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		factor *= 10
	}
	return factor, nil
}

// MarketValue prices an amount of the reserve's liquidity in the quote
// currency, adjusting for mint decimals.
func MarketValue(reserve *state.Reserve, liquidity wad.Decimal) (wad.Decimal, error) {
	factor, err := decimalsFactor(reserve.Liquidity.MintDecimals)
	if err != nil {
		return wad.Decimal{}, err
	}
	value, err := liquidity.TryMul(reserve.Liquidity.MarketPrice)
	if err != nil {
		return wad.Decimal{}, err
	}
	return value.TryDivInt(factor)
}

// LiquidityForValue is the inverse of MarketValue.
func LiquidityForValue(reserve *state.Reserve, value wad.Decimal) (wad.Decimal, error) {
	factor, err := decimalsFactor(reserve.Liquidity.MintDecimals)
	if err != nil {
		return wad.Decimal{}, err
	}
	scaled, err := value.TryMulInt(factor)
	if err != nil {
		return wad.Decimal{}, err
	}
	return scaled.TryDiv(reserve.Liquidity.MarketPrice)
}

// DepositLiquidity adds liquidity to the reserve and mints collateral at the
// current exchange rate. It returns the collateral amount minted.
func DepositLiquidity(reserve *state.Reserve, amount uint64) (uint64, error) {
	rate, err := ExchangeRate(reserve)
	if err != nil {
		return 0, err
	}
	collateral, err := rate.LiquidityToCollateral(amount)
	if err != nil {
		return 0, err
	}
	if collateral == 0 {
		return 0, ErrInvalidAmount
	}
	if err := reserve.Liquidity.Deposit(amount); err != nil {
		return 0, err
	}
	if err := reserve.Collateral.Mint(collateral); err != nil {
		return 0, err
	}
	return collateral, nil
}

// RedeemCollateral burns collateral and releases liquidity at the current
// exchange rate. It returns the liquidity amount released.
func RedeemCollateral(reserve *state.Reserve, collateral uint64) (uint64, error) {
	rate, err := ExchangeRate(reserve)
	if err != nil {
		return 0, err
	}
	liquidity, err := rate.CollateralToLiquidity(collateral)
	if err != nil {
		return 0, err
	}
	if liquidity == 0 {
		return 0, ErrInvalidAmount
	}
	if liquidity > reserve.Liquidity.AvailableAmount {
		return 0, ErrInsufficientLiquidity
	}
	if err := reserve.Collateral.Burn(collateral); err != nil {
		return 0, err
	}
	if err := reserve.Liquidity.Withdraw(liquidity); err != nil {
		return 0, err
	}
	return liquidity, nil
}
