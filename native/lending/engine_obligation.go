package lending

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	nativecommon "lendingcore/native/common"
	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
)

// InitObligation creates an empty obligation for owner, who must sign.
func (e *Engine) InitObligation(market, key, owner solana.PublicKey) (obligation *state.Obligation, err error) {
	defer func() { e.observe(opInitObligation, err, "obligation", key.String()) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.loadMarket(market); err != nil {
		return nil, err
	}
	if err := e.requireSigner(owner); err != nil {
		return nil, err
	}
	existing, err := e.state.GetObligation(key)
	if err != nil {
		return nil, err
	}
	if existing.IsInitialized() {
		return nil, fmt.Errorf("%w: obligation %s", ErrAlreadyInitialized, key)
	}
	obligation = state.NewObligation(e.currentSlot(), market, owner)
	if err := e.state.PutObligation(key, obligation); err != nil {
		return nil, err
	}
	return obligation.Clone(), nil
}

// RefreshObligation revalues an obligation against its reserves, all of
// which must have been refreshed in the current slot.
func (e *Engine) RefreshObligation(market, key solana.PublicKey) (obligation *state.Obligation, err error) {
	defer func() { e.observe(opRefreshObligation, err, "obligation", key.String()) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	current, err := e.loadObligation(market, key)
	if err != nil {
		return nil, err
	}
	reserves := make(map[solana.PublicKey]*state.Reserve, len(current.Deposits)+len(current.Borrows))
	load := func(reserveKey solana.PublicKey) error {
		if _, ok := reserves[reserveKey]; ok {
			return nil
		}
		reserve, err := e.loadReserve(market, reserveKey)
		if err != nil {
			return err
		}
		reserves[reserveKey] = reserve
		return nil
	}
	for _, deposit := range current.Deposits {
		if err := load(deposit.DepositReserve); err != nil {
			return nil, err
		}
	}
	for _, borrow := range current.Borrows {
		if err := load(borrow.BorrowReserve); err != nil {
			return nil, err
		}
	}
	obligation, err = RefreshObligation(current, ReserveMap(reserves), e.currentSlot())
	if err != nil {
		return nil, err
	}
	if err := e.state.PutObligation(key, obligation); err != nil {
		return nil, err
	}
	return obligation.Clone(), nil
}

// settleDeposit credits mining earned by deposit i since its last
// settlement and moves its entry index to the reserve's current index.
func settleDeposit(obligation *state.Obligation, i int, reserve *state.Reserve) error {
	deposit := &obligation.Deposits[i]
	index := reserve.Bonus.LTokenMiningIndex
	unclaimed, err := settleMining(obligation.UnclaimedMine, wad.FromInteger(deposit.DepositedAmount), index, deposit.Index)
	if err != nil {
		return err
	}
	obligation.UnclaimedMine = unclaimed
	deposit.Index = index
	return nil
}

func settleBorrow(obligation *state.Obligation, i int, reserve *state.Reserve) error {
	borrow := &obligation.Borrows[i]
	index := reserve.Bonus.BorrowMiningIndex
	unclaimed, err := settleMining(obligation.UnclaimedMine, borrow.BorrowedAmountWad, index, borrow.Index)
	if err != nil {
		return err
	}
	obligation.UnclaimedMine = unclaimed
	borrow.Index = index
	return nil
}

func (e *Engine) requireOwner(obligation *state.Obligation) error {
	return e.requireSigner(obligation.Owner)
}

// DepositObligationCollateralRequest moves Amount reserve collateral from
// Source into the reserve's collateral supply on behalf of the obligation.
type DepositObligationCollateralRequest struct {
	Market            solana.PublicKey
	Obligation        solana.PublicKey
	Reserve           solana.PublicKey
	Source            solana.PublicKey
	TransferAuthority solana.PublicKey
	Amount            uint64
}

// DepositObligationCollateral adds collateral to an obligation.
func (e *Engine) DepositObligationCollateral(req DepositObligationCollateralRequest) (err error) {
	defer func() { e.observe(opDepositCollateral, err, "obligation", req.Obligation.String(), "reserve", req.Reserve.String()) }()
	if err := e.ready(); err != nil {
		return err
	}
	if req.Amount == 0 {
		return ErrInvalidAmount
	}
	if _, err := e.loadMarket(req.Market); err != nil {
		return err
	}
	if err := e.requireSigner(req.TransferAuthority); err != nil {
		return err
	}
	current, err := e.loadObligation(req.Market, req.Obligation)
	if err != nil {
		return err
	}
	if err := e.requireOwner(current); err != nil {
		return err
	}
	reserve, err := e.loadReserve(req.Market, req.Reserve)
	if err != nil {
		return err
	}
	if err := requireFreshReserve(req.Reserve, reserve, e.currentSlot()); err != nil {
		return err
	}

	obligation := current.Clone()
	i, err := obligation.FindOrAddDeposit(req.Reserve, reserve.Bonus.LTokenMiningIndex)
	if err != nil {
		return err
	}
	if err := settleDeposit(obligation, i, reserve); err != nil {
		return err
	}
	if err := obligation.Deposits[i].Deposit(req.Amount); err != nil {
		return err
	}
	if err := e.transfer(req.Source, reserve.Collateral.SupplyPubkey, req.TransferAuthority, req.Amount); err != nil {
		return err
	}
	obligation.LastUpdate.MarkStale()
	return e.state.PutObligation(req.Obligation, obligation)
}

// WithdrawObligationCollateralRequest releases collateral to Destination.
// Amount may be MaxAmount.
type WithdrawObligationCollateralRequest struct {
	Market      solana.PublicKey
	Obligation  solana.PublicKey
	Reserve     solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
}

// WithdrawObligationCollateral returns the collateral amount withdrawn. Both
// the obligation and the reserve must be fresh.
func (e *Engine) WithdrawObligationCollateral(req WithdrawObligationCollateralRequest) (withdrawn uint64, err error) {
	defer func() { e.observe(opWithdrawCollateral, err, "obligation", req.Obligation.String(), "reserve", req.Reserve.String()) }()
	if err := e.ready(); err != nil {
		return 0, err
	}
	if req.Amount == 0 {
		return 0, ErrInvalidAmount
	}
	market, err := e.loadMarket(req.Market)
	if err != nil {
		return 0, err
	}
	authority, err := e.marketAuthority(req.Market, market)
	if err != nil {
		return 0, err
	}
	current, err := e.loadObligation(req.Market, req.Obligation)
	if err != nil {
		return 0, err
	}
	if err := e.requireOwner(current); err != nil {
		return 0, err
	}
	reserve, err := e.loadReserve(req.Market, req.Reserve)
	if err != nil {
		return 0, err
	}
	slot := e.currentSlot()
	if err := requireFreshReserve(req.Reserve, reserve, slot); err != nil {
		return 0, err
	}
	if err := requireFreshObligation(req.Obligation, current, slot); err != nil {
		return 0, err
	}
	i := current.FindDeposit(req.Reserve)
	if i < 0 {
		return 0, fmt.Errorf("%w: no deposit in reserve %s", ErrInvalidAccount, req.Reserve)
	}
	amount, err := CalculateWithdraw(current, i, req.Amount, reserve.Config.LoanToValueRatio)
	if err != nil {
		return 0, err
	}

	obligation := current.Clone()
	if err := settleDeposit(obligation, i, reserve); err != nil {
		return 0, err
	}
	if err := obligation.Deposits[i].Withdraw(amount); err != nil {
		return 0, err
	}
	if obligation.Deposits[i].DepositedAmount == 0 {
		obligation.RemoveDeposit(i)
	}
	if err := e.transfer(reserve.Collateral.SupplyPubkey, req.Destination, authority, amount); err != nil {
		return 0, err
	}
	obligation.LastUpdate.MarkStale()
	if err := e.state.PutObligation(req.Obligation, obligation); err != nil {
		return 0, err
	}
	return amount, nil
}

// BorrowObligationLiquidityRequest borrows Amount (MaxAmount for the full
// remaining capacity) to Destination. HostFeeReceiver may be zero.
type BorrowObligationLiquidityRequest struct {
	Market          solana.PublicKey
	Obligation      solana.PublicKey
	Reserve         solana.PublicKey
	Destination     solana.PublicKey
	HostFeeReceiver solana.PublicKey
	Amount          uint64
}

// BorrowObligationLiquidity books a borrow against the obligation's
// collateral. The origination fee is added to the debt and paid out of the
// reserve supply.
func (e *Engine) BorrowObligationLiquidity(req BorrowObligationLiquidityRequest) (result BorrowResult, err error) {
	defer func() { e.observe(opBorrowLiquidity, err, "obligation", req.Obligation.String(), "reserve", req.Reserve.String()) }()
	if err := e.ready(); err != nil {
		return BorrowResult{}, err
	}
	if req.Amount == 0 {
		return BorrowResult{}, ErrInvalidAmount
	}
	market, err := e.loadMarket(req.Market)
	if err != nil {
		return BorrowResult{}, err
	}
	authority, err := e.marketAuthority(req.Market, market)
	if err != nil {
		return BorrowResult{}, err
	}
	current, err := e.loadObligation(req.Market, req.Obligation)
	if err != nil {
		return BorrowResult{}, err
	}
	if err := e.requireOwner(current); err != nil {
		return BorrowResult{}, err
	}
	err = e.withReserves(req.Market, []solana.PublicKey{req.Reserve}, func(reserves map[solana.PublicKey]*state.Reserve) error {
		reserve := reserves[req.Reserve]
		if err := nativecommon.Guard(&reserve.Config, state.ActionBorrow); err != nil {
			return err
		}
		slot := e.currentSlot()
		if err := requireFreshReserve(req.Reserve, reserve, slot); err != nil {
			return err
		}
		if err := requireFreshObligation(req.Obligation, current, slot); err != nil {
			return err
		}
		sized, err := CalculateBorrow(reserve, req.Amount, current.RemainingBorrowValue())
		if err != nil {
			return err
		}
		if err := reserve.Liquidity.Borrow(sized.BorrowAmount, sized.ReceiveAmount+sized.Fees.Total); err != nil {
			return err
		}

		obligation := current.Clone()
		i, err := obligation.FindOrAddBorrow(req.Reserve, reserve.Liquidity.CumulativeBorrowRateWad, reserve.Bonus.BorrowMiningIndex)
		if err != nil {
			return err
		}
		if err := settleBorrow(obligation, i, reserve); err != nil {
			return err
		}
		if err := obligation.Borrows[i].Borrow(sized.BorrowAmount); err != nil {
			return err
		}

		if err := e.transfer(reserve.Liquidity.SupplyPubkey, req.Destination, authority, sized.ReceiveAmount); err != nil {
			return err
		}
		if err := e.payFees(reserve, authority, req.HostFeeReceiver, sized.Fees); err != nil {
			return err
		}
		reserve.LastUpdate.MarkStale()
		obligation.LastUpdate.MarkStale()
		if err := e.state.PutReserve(req.Reserve, reserve); err != nil {
			return err
		}
		if err := e.state.PutObligation(req.Obligation, obligation); err != nil {
			return err
		}
		result = sized
		return nil
	})
	if err != nil {
		return BorrowResult{}, err
	}
	return result, nil
}

// RepayObligationLiquidityRequest repays Amount (MaxAmount for the full
// debt) from Source.
type RepayObligationLiquidityRequest struct {
	Market            solana.PublicKey
	Obligation        solana.PublicKey
	Reserve           solana.PublicKey
	Source            solana.PublicKey
	TransferAuthority solana.PublicKey
	Amount            uint64
}

// RepayObligationLiquidity settles debt. A borrow repaid to zero is removed
// from the obligation.
func (e *Engine) RepayObligationLiquidity(req RepayObligationLiquidityRequest) (result RepayResult, err error) {
	defer func() { e.observe(opRepayLiquidity, err, "obligation", req.Obligation.String(), "reserve", req.Reserve.String()) }()
	if err := e.ready(); err != nil {
		return RepayResult{}, err
	}
	if req.Amount == 0 {
		return RepayResult{}, ErrInvalidAmount
	}
	if _, err := e.loadMarket(req.Market); err != nil {
		return RepayResult{}, err
	}
	if err := e.requireSigner(req.TransferAuthority); err != nil {
		return RepayResult{}, err
	}
	current, err := e.loadObligation(req.Market, req.Obligation)
	if err != nil {
		return RepayResult{}, err
	}
	err = e.withReserves(req.Market, []solana.PublicKey{req.Reserve}, func(reserves map[solana.PublicKey]*state.Reserve) error {
		reserve := reserves[req.Reserve]
		slot := e.currentSlot()
		if err := requireFreshReserve(req.Reserve, reserve, slot); err != nil {
			return err
		}
		if err := requireFreshObligation(req.Obligation, current, slot); err != nil {
			return err
		}
		i := current.FindBorrow(req.Reserve)
		if i < 0 {
			return fmt.Errorf("%w: no borrow in reserve %s", ErrInvalidAccount, req.Reserve)
		}
		sized, err := CalculateRepay(req.Amount, current.Borrows[i].BorrowedAmountWad)
		if err != nil {
			return err
		}
		if err := reserve.Liquidity.Repay(sized.RepayAmount, sized.SettleAmount); err != nil {
			return err
		}

		obligation := current.Clone()
		if err := settleBorrow(obligation, i, reserve); err != nil {
			return err
		}
		if err := obligation.Borrows[i].Repay(sized.SettleAmount); err != nil {
			return err
		}
		if obligation.Borrows[i].BorrowedAmountWad.IsZero() {
			obligation.RemoveBorrow(i)
		}

		if err := e.transfer(req.Source, reserve.Liquidity.SupplyPubkey, req.TransferAuthority, sized.RepayAmount); err != nil {
			return err
		}
		reserve.LastUpdate.MarkStale()
		obligation.LastUpdate.MarkStale()
		if err := e.state.PutReserve(req.Reserve, reserve); err != nil {
			return err
		}
		if err := e.state.PutObligation(req.Obligation, obligation); err != nil {
			return err
		}
		result = sized
		return nil
	})
	if err != nil {
		return RepayResult{}, err
	}
	return result, nil
}

// LiquidateObligationRequest repays debt of an unhealthy obligation in
// RepayReserve and receives collateral from WithdrawReserve at a discount.
// Amount may be MaxAmount for the largest eligible liquidation.
type LiquidateObligationRequest struct {
	Market            solana.PublicKey
	Obligation        solana.PublicKey
	RepayReserve      solana.PublicKey
	WithdrawReserve   solana.PublicKey
	Source            solana.PublicKey
	Destination       solana.PublicKey
	TransferAuthority solana.PublicKey
	Amount            uint64
}

// LiquidateObligation liquidates one borrow against one deposit of an
// obligation whose borrowed value exceeds its unhealthy borrow value.
func (e *Engine) LiquidateObligation(req LiquidateObligationRequest) (LiquidationResult, error) {
	return e.liquidate(opLiquidateObligation, req)
}

// LiquidateObligation2 is the second liquidation instruction. It omits the
// clock account from its account list and otherwise behaves exactly like
// LiquidateObligation.
func (e *Engine) LiquidateObligation2(req LiquidateObligationRequest) (LiquidationResult, error) {
	return e.liquidate(opLiquidateObligation2, req)
}

func (e *Engine) liquidate(op string, req LiquidateObligationRequest) (result LiquidationResult, err error) {
	defer func() { e.observe(op, err, "obligation", req.Obligation.String(), "reserve", req.RepayReserve.String()) }()
	if err := e.ready(); err != nil {
		return LiquidationResult{}, err
	}
	if req.Amount == 0 {
		return LiquidationResult{}, ErrInvalidAmount
	}
	market, err := e.loadMarket(req.Market)
	if err != nil {
		return LiquidationResult{}, err
	}
	authority, err := e.marketAuthority(req.Market, market)
	if err != nil {
		return LiquidationResult{}, err
	}
	if err := e.requireSigner(req.TransferAuthority); err != nil {
		return LiquidationResult{}, err
	}
	current, err := e.loadObligation(req.Market, req.Obligation)
	if err != nil {
		return LiquidationResult{}, err
	}
	keys := []solana.PublicKey{req.RepayReserve, req.WithdrawReserve}
	err = e.withReserves(req.Market, keys, func(reserves map[solana.PublicKey]*state.Reserve) error {
		repayReserve := reserves[req.RepayReserve]
		withdrawReserve := reserves[req.WithdrawReserve]
		if err := nativecommon.Guard(&repayReserve.Config, state.ActionLiquidation); err != nil {
			return err
		}
		slot := e.currentSlot()
		if err := requireFreshReserve(req.RepayReserve, repayReserve, slot); err != nil {
			return err
		}
		if err := requireFreshReserve(req.WithdrawReserve, withdrawReserve, slot); err != nil {
			return err
		}
		if err := requireFreshObligation(req.Obligation, current, slot); err != nil {
			return err
		}
		if IsHealthy(current) {
			return ErrObligationHealthy
		}
		bi := current.FindBorrow(req.RepayReserve)
		if bi < 0 {
			return fmt.Errorf("%w: no borrow in reserve %s", ErrInvalidAccount, req.RepayReserve)
		}
		di := current.FindDeposit(req.WithdrawReserve)
		if di < 0 {
			return fmt.Errorf("%w: no deposit in reserve %s", ErrInvalidAccount, req.WithdrawReserve)
		}
		sized, err := CalculateLiquidation(req.Amount, &current.Borrows[bi], &current.Deposits[di], withdrawReserve.Config.LiquidationBonus)
		if err != nil {
			return err
		}
		if err := repayReserve.Liquidity.Repay(sized.RepayAmount, sized.SettleAmount); err != nil {
			return err
		}

		obligation := current.Clone()
		if err := settleBorrow(obligation, bi, repayReserve); err != nil {
			return err
		}
		if err := settleDeposit(obligation, di, withdrawReserve); err != nil {
			return err
		}
		if err := obligation.Borrows[bi].Repay(sized.SettleAmount); err != nil {
			return err
		}
		if err := obligation.Deposits[di].Withdraw(sized.WithdrawAmount); err != nil {
			return err
		}
		if obligation.Borrows[bi].BorrowedAmountWad.IsZero() {
			obligation.RemoveBorrow(bi)
		}
		if obligation.Deposits[di].DepositedAmount == 0 {
			obligation.RemoveDeposit(di)
		}

		if err := e.transfer(req.Source, repayReserve.Liquidity.SupplyPubkey, req.TransferAuthority, sized.RepayAmount); err != nil {
			return err
		}
		if err := e.transfer(withdrawReserve.Collateral.SupplyPubkey, req.Destination, authority, sized.WithdrawAmount); err != nil {
			return err
		}
		repayReserve.LastUpdate.MarkStale()
		obligation.LastUpdate.MarkStale()
		if err := e.state.PutReserve(req.RepayReserve, repayReserve); err != nil {
			return err
		}
		if err := e.state.PutObligation(req.Obligation, obligation); err != nil {
			return err
		}
		result = sized
		return nil
	})
	if err != nil {
		return LiquidationResult{}, err
	}
	e.telemetry.ObserveLiquidation(req.RepayReserve.String())
	e.logger.Info("lending: obligation liquidated",
		"op", op,
		"obligation", req.Obligation.String(),
		"reserve", req.RepayReserve.String(),
		"liquidator", req.TransferAuthority.String(),
		"repay", result.RepayAmount,
		"withdraw", result.WithdrawAmount)
	return result, nil
}

// ClaimObligationMineRequest pays an obligation's unclaimed mining reward from
// the market's mine supply to Destination.
type ClaimObligationMineRequest struct {
	Market      solana.PublicKey
	Obligation  solana.PublicKey
	Destination solana.PublicKey
}

// ClaimObligationMine transfers the whole-token part of the obligation's
// unclaimed reward. The obligation must be fresh so that every entry has
// been settled.
func (e *Engine) ClaimObligationMine(req ClaimObligationMineRequest) (amount uint64, err error) {
	defer func() { e.observe(opClaimObligationMine, err, "obligation", req.Obligation.String()) }()
	if err := e.ready(); err != nil {
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
	current, err := e.loadObligation(req.Market, req.Obligation)
	if err != nil {
		return 0, err
	}
	if err := e.requireOwner(current); err != nil {
		return 0, err
	}
	if err := requireFreshObligation(req.Obligation, current, e.currentSlot()); err != nil {
		return 0, err
	}
	amount, err = current.UnclaimedMine.TryFloorU64()
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	obligation := current.Clone()
	if obligation.UnclaimedMine, err = obligation.UnclaimedMine.TrySub(wad.FromInteger(amount)); err != nil {
		return 0, err
	}
	if err := e.transfer(market.MineSupplyAccount, req.Destination, authority, amount); err != nil {
		return 0, err
	}
	if err := e.state.PutObligation(req.Obligation, obligation); err != nil {
		return 0, err
	}
	return amount, nil
}
