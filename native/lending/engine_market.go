package lending

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/state"
)

// InitLendingMarketRequest creates a market. Params.BumpSeed is ignored; the
// engine derives it from the market key.
type InitLendingMarketRequest struct {
	Market    solana.PublicKey
	Authority solana.PublicKey
	Params    state.InitLendingMarketParams
}

// InitLendingMarket creates and persists a new market.
func (e *Engine) InitLendingMarket(req InitLendingMarketRequest) (market *state.LendingMarket, err error) {
	defer func() { e.observe(opInitLendingMarket, err, "market", req.Market.String()) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireSigner(req.Authority); err != nil {
		return nil, err
	}
	if req.Params.Owner == (solana.PublicKey{}) {
		return nil, fmt.Errorf("%w: market owner required", ErrInvalidAccount)
	}
	existing, err := e.state.GetLendingMarket(req.Market)
	if err != nil {
		return nil, err
	}
	if existing.IsInitialized() {
		return nil, fmt.Errorf("%w: lending market %s", ErrAlreadyInitialized, req.Market)
	}
	_, bump, err := solana.FindProgramAddress([][]byte{req.Market[:]}, e.programID)
	if err != nil {
		return nil, fmt.Errorf("%w: market authority: %v", ErrInvalidAccount, err)
	}
	params := req.Params
	params.BumpSeed = bump
	market = state.NewLendingMarket(params)
	if err := e.state.PutLendingMarket(req.Market, market); err != nil {
		return nil, err
	}
	e.logger.Info("lending: market initialised",
		"market", req.Market.String(),
		"owner", market.Owner.String())
	return market.Clone(), nil
}

// MarketAuthority returns the derived authority of an initialised market.
func (e *Engine) MarketAuthority(key solana.PublicKey) (solana.PublicKey, error) {
	if err := e.ready(); err != nil {
		return solana.PublicKey{}, err
	}
	market, err := e.loadMarket(key)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return e.marketAuthority(key, market)
}

// SetLendingMarketOwner records newOwner as pending. The current owner must
// sign; ownership moves only once the pending owner accepts.
func (e *Engine) SetLendingMarketOwner(key, newOwner solana.PublicKey) (err error) {
	defer func() { e.observe(opSetLendingMarketOwner, err, "market", key.String()) }()
	if err := e.ready(); err != nil {
		return err
	}
	market, err := e.loadMarket(key)
	if err != nil {
		return err
	}
	if err := e.requireSigner(market.Owner); err != nil {
		return err
	}
	if newOwner == (solana.PublicKey{}) {
		return fmt.Errorf("%w: pending owner required", ErrInvalidAccount)
	}
	next := market.Clone()
	next.PendingOwner = newOwner
	if err := e.state.PutLendingMarket(key, next); err != nil {
		return err
	}
	e.logger.Info("lending: market owner proposed",
		"market", key.String(),
		"owner", market.Owner.String(),
		"pending_owner", newOwner.String())
	return nil
}

// ReceivePendingOwner promotes the pending owner, who must sign, and clears
// the pending slot.
func (e *Engine) ReceivePendingOwner(key solana.PublicKey) (err error) {
	defer func() { e.observe(opReceivePendingOwner, err, "market", key.String()) }()
	if err := e.ready(); err != nil {
		return err
	}
	market, err := e.loadMarket(key)
	if err != nil {
		return err
	}
	if market.PendingOwner == (solana.PublicKey{}) {
		return fmt.Errorf("%w: no pending owner", ErrInvalidAccount)
	}
	if err := e.requireSigner(market.PendingOwner); err != nil {
		return err
	}
	next := market.Clone()
	next.Owner = market.PendingOwner
	next.PendingOwner = solana.PublicKey{}
	if err := e.state.PutLendingMarket(key, next); err != nil {
		return err
	}
	e.logger.Info("lending: market owner changed",
		"market", key.String(),
		"owner", next.Owner.String())
	return nil
}
