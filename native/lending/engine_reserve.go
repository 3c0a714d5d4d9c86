package lending

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	nativecommon "lendingcore/native/common"
	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
	"lendingcore/observability/logging"
)

// InitReserveRequest lists a new asset. The market owner must sign and the
// reserve is seeded with LiquidityAmount from Source, minting collateral to
// Destination. Amount fields inside Liquidity, Collateral and Bonus are
// ignored.
type InitReserveRequest struct {
	Market            solana.PublicKey
	Reserve           solana.PublicKey
	Source            solana.PublicKey
	Destination       solana.PublicKey
	TransferAuthority solana.PublicKey
	LiquidityAmount   uint64
	Liquidity         state.ReserveLiquidity
	Collateral        state.ReserveCollateral
	Config            state.ReserveConfig
	Bonus             state.Bonus
}

// InitReserve creates a reserve, prices it and deposits the seed liquidity.
func (e *Engine) InitReserve(req InitReserveRequest) (reserve *state.Reserve, err error) {
	defer func() { e.observe(opInitReserve, err, "market", req.Market.String(), "reserve", req.Reserve.String()) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.oracle == nil {
		return nil, errMissingCollaborator
	}
	if req.LiquidityAmount == 0 {
		return nil, ErrInvalidAmount
	}
	market, err := e.loadMarket(req.Market)
	if err != nil {
		return nil, err
	}
	if err := e.requireSigner(market.Owner); err != nil {
		return nil, err
	}
	if err := e.requireSigner(req.TransferAuthority); err != nil {
		return nil, err
	}
	existing, err := e.state.GetReserve(req.Reserve)
	if err != nil {
		return nil, err
	}
	if existing.IsInitialized() {
		return nil, fmt.Errorf("%w: reserve %s", ErrAlreadyInitialized, req.Reserve)
	}
	authority, err := e.marketAuthority(req.Market, market)
	if err != nil {
		return nil, err
	}

	slot := e.currentSlot()
	reserve, err = state.NewReserve(state.InitReserveParams{
		CurrentSlot:   slot,
		LendingMarket: req.Market,
		Liquidity:     req.Liquidity,
		Collateral:    req.Collateral,
		Config:        req.Config,
		Bonus:         req.Bonus,
	})
	if err != nil {
		return nil, err
	}
	price, err := e.oracle.CurrentOraclePrice(reserve.Liquidity.OracleAccount())
	if err != nil {
		return nil, fmt.Errorf("lending: oracle price: %w", err)
	}
	reserve.Liquidity.MarketPrice = price
	collateral, err := DepositLiquidity(reserve, req.LiquidityAmount)
	if err != nil {
		return nil, err
	}

	if err := e.transfer(req.Source, reserve.Liquidity.SupplyPubkey, req.TransferAuthority, req.LiquidityAmount); err != nil {
		return nil, err
	}
	if err := e.mintTo(reserve.Collateral.MintPubkey, req.Destination, authority, collateral); err != nil {
		return nil, err
	}
	if err := e.state.PutReserve(req.Reserve, reserve); err != nil {
		return nil, err
	}
	e.logger.Info("lending: reserve initialised",
		"market", req.Market.String(),
		"reserve", req.Reserve.String(),
		"mint", reserve.Liquidity.MintPubkey.String())
	return reserve.Clone(), nil
}

func (e *Engine) refreshed(key solana.PublicKey, reserve *state.Reserve, slot uint64) (*state.Reserve, error) {
	price, err := e.oracle.CurrentOraclePrice(reserve.Liquidity.OracleAccount())
	if err != nil {
		return nil, fmt.Errorf("lending: oracle price for %s: %w", key, err)
	}
	return RefreshReserve(reserve, slot, price, e.slotsPerYear)
}

// RefreshReserve accrues interest and mining on a reserve up to the current
// slot and applies the latest oracle price.
func (e *Engine) RefreshReserve(market, key solana.PublicKey) (reserve *state.Reserve, err error) {
	defer func() { e.observe(opRefreshReserve, err, "reserve", key.String()) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.oracle == nil {
		return nil, errMissingCollaborator
	}
	err = e.withReserves(market, []solana.PublicKey{key}, func(reserves map[solana.PublicKey]*state.Reserve) error {
		next, err := e.refreshed(key, reserves[key], e.currentSlot())
		if err != nil {
			return err
		}
		if err := e.state.PutReserve(key, next); err != nil {
			return err
		}
		reserve = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publishRates(key, reserve)
	reserve.ReentryLock = false
	return reserve, nil
}

// RefreshReserves refreshes several reserves at once. Nothing is written
// unless every reserve refreshes.
func (e *Engine) RefreshReserves(market solana.PublicKey, keys []solana.PublicKey) (err error) {
	defer func() { e.observe(opRefreshReserves, err, "market", market.String()) }()
	if err := e.ready(); err != nil {
		return err
	}
	if e.oracle == nil {
		return errMissingCollaborator
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no reserves supplied", ErrInvalidAccount)
	}
	var updated map[solana.PublicKey]*state.Reserve
	err = e.withReserves(market, keys, func(reserves map[solana.PublicKey]*state.Reserve) error {
		slot := e.currentSlot()
		updated = make(map[solana.PublicKey]*state.Reserve, len(reserves))
		for key, reserve := range reserves {
			next, err := e.refreshed(key, reserve, slot)
			if err != nil {
				return err
			}
			updated[key] = next
		}
		for key, next := range updated {
			if err := e.state.PutReserve(key, next); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for key, next := range updated {
		e.publishRates(key, next)
	}
	return nil
}

// DepositReserveLiquidityRequest moves Amount liquidity from Source into the
// reserve and mints collateral to Destination.
type DepositReserveLiquidityRequest struct {
	Market            solana.PublicKey
	Reserve           solana.PublicKey
	Source            solana.PublicKey
	Destination       solana.PublicKey
	TransferAuthority solana.PublicKey
	Amount            uint64
}

// DepositReserveLiquidity returns the collateral minted for the deposit.
func (e *Engine) DepositReserveLiquidity(req DepositReserveLiquidityRequest) (collateral uint64, err error) {
	defer func() { e.observe(opDepositReserveLiquidity, err, "reserve", req.Reserve.String()) }()
	if err := e.ready(); err != nil {
		return 0, err
	}
	if req.Amount == 0 {
		return 0, ErrInvalidAmount
	}
	if err := e.requireSigner(req.TransferAuthority); err != nil {
		return 0, err
	}
	market, err := e.loadMarket(req.Market)
	if err != nil {
		return 0, err
	}
	authority, err := e.marketAuthority(req.Market, market)
	if err != nil {
		return 0, err
	}
	err = e.withReserves(req.Market, []solana.PublicKey{req.Reserve}, func(reserves map[solana.PublicKey]*state.Reserve) error {
		reserve := reserves[req.Reserve]
		if err := requireFreshReserve(req.Reserve, reserve, e.currentSlot()); err != nil {
			return err
		}
		if err := nativecommon.Guard(&reserve.Config, state.ActionDeposit); err != nil {
			return err
		}
		if err := checkDepositLimit(reserve, req.Amount); err != nil {
			return err
		}
		minted, err := DepositLiquidity(reserve, req.Amount)
		if err != nil {
			return err
		}
		if err := e.transfer(req.Source, reserve.Liquidity.SupplyPubkey, req.TransferAuthority, req.Amount); err != nil {
			return err
		}
		if err := e.mintTo(reserve.Collateral.MintPubkey, req.Destination, authority, minted); err != nil {
			return err
		}
		reserve.LastUpdate.MarkStale()
		if err := e.state.PutReserve(req.Reserve, reserve); err != nil {
			return err
		}
		collateral = minted
		return nil
	})
	if err != nil {
		return 0, err
	}
	return collateral, nil
}

// checkDepositLimit rejects deposits that would lift the reserve's total
// liquidity above its deposit limit. A zero limit is unlimited.
func checkDepositLimit(reserve *state.Reserve, amount uint64) error {
	total, err := reserve.Liquidity.TotalSupply()
	if err != nil {
		return err
	}
	used, err := total.TryFloorU64()
	if err != nil {
		return err
	}
	if _, err := nativecommon.CheckLimit(reserve.Config.DepositLimit, used, amount); err != nil {
		if errors.Is(err, nativecommon.ErrCounterOverflow) {
			return ErrMathOverflow
		}
		return fmt.Errorf("%w: limit %d, supplied %d, deposit %d", ErrDepositLimit, reserve.Config.DepositLimit, used, amount)
	}
	return nil
}

// RedeemReserveCollateralRequest burns Amount collateral from Source and
// releases the matching liquidity to Destination.
type RedeemReserveCollateralRequest struct {
	Market            solana.PublicKey
	Reserve           solana.PublicKey
	Source            solana.PublicKey
	Destination       solana.PublicKey
	TransferAuthority solana.PublicKey
	Amount            uint64
}

// RedeemReserveCollateral returns the liquidity released.
func (e *Engine) RedeemReserveCollateral(req RedeemReserveCollateralRequest) (liquidity uint64, err error) {
	defer func() { e.observe(opRedeemReserveCollateral, err, "reserve", req.Reserve.String()) }()
	if err := e.ready(); err != nil {
		return 0, err
	}
	if req.Amount == 0 {
		return 0, ErrInvalidAmount
	}
	if err := e.requireSigner(req.TransferAuthority); err != nil {
		return 0, err
	}
	market, err := e.loadMarket(req.Market)
	if err != nil {
		return 0, err
	}
	authority, err := e.marketAuthority(req.Market, market)
	if err != nil {
		return 0, err
	}
	err = e.withReserves(req.Market, []solana.PublicKey{req.Reserve}, func(reserves map[solana.PublicKey]*state.Reserve) error {
		reserve := reserves[req.Reserve]
		if err := requireFreshReserve(req.Reserve, reserve, e.currentSlot()); err != nil {
			return err
		}
		released, err := RedeemCollateral(reserve, req.Amount)
		if err != nil {
			return err
		}
		if err := e.burn(reserve.Collateral.MintPubkey, req.Source, req.TransferAuthority, req.Amount); err != nil {
			return err
		}
		if err := e.transfer(reserve.Liquidity.SupplyPubkey, req.Destination, authority, released); err != nil {
			return err
		}
		reserve.LastUpdate.MarkStale()
		if err := e.state.PutReserve(req.Reserve, reserve); err != nil {
			return err
		}
		liquidity = released
		return nil
	})
	if err != nil {
		return 0, err
	}
	return liquidity, nil
}

// SetReserveConfig replaces a reserve's configuration. The market owner must
// sign.
func (e *Engine) SetReserveConfig(market, key solana.PublicKey, cfg state.ReserveConfig) (err error) {
	defer func() { e.observe(opSetReserveConfig, err, "reserve", key.String()) }()
	if err := e.ready(); err != nil {
		return err
	}
	lendingMarket, err := e.loadMarket(market)
	if err != nil {
		return err
	}
	if err := e.requireSigner(lendingMarket.Owner); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Fees.HostFeeReceivers = append([]solana.PublicKey(nil), cfg.Fees.HostFeeReceivers...)
	return e.withReserves(market, []solana.PublicKey{key}, func(reserves map[solana.PublicKey]*state.Reserve) error {
		reserve := reserves[key]
		reserve.Config = cfg
		reserve.LastUpdate.MarkStale()
		return e.state.PutReserve(key, reserve)
	})
}

// ClaimOwnerFeeRequest pays the reserve owner's accrued interest share.
// A zero Destination pays the reserve fee receiver.
type ClaimOwnerFeeRequest struct {
	Market      solana.PublicKey
	Reserve     solana.PublicKey
	Destination solana.PublicKey
}

// ClaimOwnerFee transfers the whole-token part of the owner's unclaimed fee,
// bounded by available liquidity, and returns the amount paid.
func (e *Engine) ClaimOwnerFee(req ClaimOwnerFeeRequest) (amount uint64, err error) {
	defer func() { e.observe(opClaimOwnerFee, err, "reserve", req.Reserve.String()) }()
	if err := e.ready(); err != nil {
		return 0, err
	}
	market, err := e.loadMarket(req.Market)
	if err != nil {
		return 0, err
	}
	if err := e.requireSigner(market.Owner); err != nil {
		return 0, err
	}
	authority, err := e.marketAuthority(req.Market, market)
	if err != nil {
		return 0, err
	}
	err = e.withReserves(req.Market, []solana.PublicKey{req.Reserve}, func(reserves map[solana.PublicKey]*state.Reserve) error {
		reserve := reserves[req.Reserve]
		if err := requireFreshReserve(req.Reserve, reserve, e.currentSlot()); err != nil {
			return err
		}
		claimable, err := reserve.Liquidity.OwnerUnclaimed.TryFloorU64()
		if err != nil {
			return err
		}
		if claimable > reserve.Liquidity.AvailableAmount {
			claimable = reserve.Liquidity.AvailableAmount
		}
		if claimable == 0 {
			return ErrInvalidAmount
		}
		rest, err := reserve.Liquidity.OwnerUnclaimed.TrySub(wad.FromInteger(claimable))
		if err != nil {
			return err
		}
		if err := reserve.Liquidity.Withdraw(claimable); err != nil {
			return err
		}
		reserve.Liquidity.OwnerUnclaimed = rest
		destination := req.Destination
		if destination == (solana.PublicKey{}) {
			destination = reserve.Liquidity.FeeReceiver
		}
		if err := e.transfer(reserve.Liquidity.SupplyPubkey, destination, authority, claimable); err != nil {
			return err
		}
		reserve.LastUpdate.MarkStale()
		if err := e.state.PutReserve(req.Reserve, reserve); err != nil {
			return err
		}
		amount = claimable
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// FlashLoanRequest lends Amount (MaxAmount for all available liquidity) to
// Destination for the duration of Receiver. HostFeeReceiver may be zero.
type FlashLoanRequest struct {
	Market          solana.PublicKey
	Reserve         solana.PublicKey
	Destination     solana.PublicKey
	HostFeeReceiver solana.PublicKey
	Authority       solana.PublicKey
	Amount          uint64
	Receiver        FlashLoanReceiver
	Data            []byte
}

// FlashLoan lends liquidity without collateral. The receiver runs while the
// reserve is locked; afterwards the supply balance must have grown by at
// least the fee, which is then paid out to the fee receivers.
func (e *Engine) FlashLoan(req FlashLoanRequest) (fees FeeBreakdown, err error) {
	defer func() { e.observe(opFlashLoan, err, "reserve", req.Reserve.String()) }()
	if err := e.ready(); err != nil {
		return FeeBreakdown{}, err
	}
	if req.Amount == 0 {
		return FeeBreakdown{}, ErrInvalidAmount
	}
	if req.Receiver == nil {
		return FeeBreakdown{}, fmt.Errorf("%w: flash loan receiver required", ErrInvalidAccount)
	}
	if err := e.requireSigner(req.Authority); err != nil {
		return FeeBreakdown{}, err
	}
	market, err := e.loadMarket(req.Market)
	if err != nil {
		return FeeBreakdown{}, err
	}
	authority, err := e.marketAuthority(req.Market, market)
	if err != nil {
		return FeeBreakdown{}, err
	}
	var lent uint64
	err = e.withReserves(req.Market, []solana.PublicKey{req.Reserve}, func(reserves map[solana.PublicKey]*state.Reserve) error {
		reserve := reserves[req.Reserve]
		amount := req.Amount
		if amount == MaxAmount {
			amount = reserve.Liquidity.AvailableAmount
		}
		if amount == 0 || amount > reserve.Liquidity.AvailableAmount {
			return ErrInsufficientLiquidity
		}
		owed, err := CalculateFlashLoanFees(&reserve.Config.Fees, amount)
		if err != nil {
			return err
		}
		supply := reserve.Liquidity.SupplyPubkey
		before, err := e.tokens.Balance(supply)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		required := before + owed.Total
		if required < before {
			return ErrMathOverflow
		}

		if err := e.transfer(supply, req.Destination, authority, amount); err != nil {
			return err
		}
		e.logger.Debug("lending: flash loan issued",
			"reserve", req.Reserve.String(),
			"amount", amount,
			logging.MaskField("callback_data", hex.EncodeToString(req.Data)))
		if err := req.Receiver.ReceiveFlashLoan(amount, owed.Total, req.Data); err != nil {
			return fmt.Errorf("lending: flash loan receiver: %w", err)
		}
		after, err := e.tokens.Balance(supply)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if after < required {
			return fmt.Errorf("%w: balance %d, required %d", ErrFlashLoanNotRepaid, after, required)
		}
		if err := e.payFees(reserve, authority, req.HostFeeReceiver, owed); err != nil {
			return err
		}
		fees = owed
		lent = amount
		return nil
	})
	if err != nil {
		return FeeBreakdown{}, err
	}
	e.telemetry.AddFlashLoanVolume(req.Reserve.String(), float64(lent))
	return fees, nil
}
