package lending

import (
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
	"lendingcore/observability/metrics"
)

const (
	opInitLendingMarket       = "init_lending_market"
	opSetLendingMarketOwner   = "set_lending_market_owner"
	opReceivePendingOwner     = "receive_pending_owner"
	opInitReserve             = "init_reserve"
	opRefreshReserve          = "refresh_reserve"
	opRefreshReserves         = "refresh_reserves"
	opDepositReserveLiquidity = "deposit_reserve_liquidity"
	opRedeemReserveCollateral = "redeem_reserve_collateral"
	opSetReserveConfig        = "set_reserve_config"
	opClaimOwnerFee           = "claim_owner_fee"
	opFlashLoan               = "flash_loan"
	opInitObligation          = "init_obligation"
	opRefreshObligation       = "refresh_obligation"
	opDepositCollateral       = "deposit_obligation_collateral"
	opWithdrawCollateral      = "withdraw_obligation_collateral"
	opBorrowLiquidity         = "borrow_obligation_liquidity"
	opRepayLiquidity          = "repay_obligation_liquidity"
	opLiquidateObligation     = "liquidate_obligation"
	opLiquidateObligation2    = "liquidate_obligation2"
	opClaimObligationMine     = "claim_obligation_mine"
)

// engineState persists decoded records. Getters return nil, nil for keys that
// have never been written.
type engineState interface {
	GetLendingMarket(key solana.PublicKey) (*state.LendingMarket, error)
	PutLendingMarket(key solana.PublicKey, market *state.LendingMarket) error
	GetReserve(key solana.PublicKey) (*state.Reserve, error)
	PutReserve(key solana.PublicKey, reserve *state.Reserve) error
	GetObligation(key solana.PublicKey) (*state.Obligation, error)
	PutObligation(key solana.PublicKey, obligation *state.Obligation) error
}

// Options carries the deployment-specific values the engine needs.
type Options struct {
	// ProgramID owns every market and derives market authorities.
	ProgramID solana.PublicKey
	// SlotsPerYear converts APRs into per-slot compounding. Zero selects
	// state.DefaultSlotsPerYear.
	SlotsPerYear uint64
}

// Engine applies lending operations to persisted markets, reserves and
// obligations. Every operation works on copies of the loaded records and
// writes them back only after all checks and token movements succeed.
type Engine struct {
	state        engineState
	tokens       TokenProgram
	oracle       PriceOracle
	clock        Clock
	signers      SignerVerifier
	programID    solana.PublicKey
	slotsPerYear uint64
	logger       *slog.Logger
	telemetry    *metrics.LendingMetrics
}

// NewEngine constructs an engine for the given program.
func NewEngine(opts Options) *Engine {
	slotsPerYear := opts.SlotsPerYear
	if slotsPerYear == 0 {
		slotsPerYear = state.DefaultSlotsPerYear
	}
	return &Engine{
		programID:    opts.ProgramID,
		slotsPerYear: slotsPerYear,
		logger:       slog.Default(),
		telemetry:    metrics.Lending(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.state = state
}

func (e *Engine) SetTokenProgram(tokens TokenProgram) {
	if e == nil {
		return
	}
	e.tokens = tokens
}

func (e *Engine) SetOracle(oracle PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

func (e *Engine) SetClock(clock Clock) {
	if e == nil {
		return
	}
	e.clock = clock
}

// SetSigners configures how the engine checks that accounts signed the
// enclosing call.
func (e *Engine) SetSigners(signers SignerVerifier) {
	if e == nil {
		return
	}
	e.signers = signers
}

// SetLogger replaces the logger. A nil logger restores slog.Default().
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// ProgramID returns the program the engine derives authorities for.
func (e *Engine) ProgramID() solana.PublicKey {
	if e == nil {
		return solana.PublicKey{}
	}
	return e.programID
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil || e.clock == nil || e.signers == nil {
		return errMissingCollaborator
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return nil
}

func (e *Engine) observe(op string, err error, attrs ...any) {
	if e == nil {
		return
	}
	e.telemetry.ObserveOperation(op, err)
	if err != nil && e.logger != nil {
		args := append([]any{"op", op, "error", err}, attrs...)
		e.logger.Debug("lending: operation rejected", args...)
	}
}

func (e *Engine) currentSlot() uint64 { return e.clock.CurrentSlot() }

func (e *Engine) requireSigner(account solana.PublicKey) error {
	if account == (solana.PublicKey{}) || !e.signers.VerifySigner(account) {
		return fmt.Errorf("%w: %s", ErrInvalidSigner, account)
	}
	return nil
}

func (e *Engine) loadMarket(key solana.PublicKey) (*state.LendingMarket, error) {
	market, err := e.state.GetLendingMarket(key)
	if err != nil {
		return nil, err
	}
	if !market.IsInitialized() {
		return nil, fmt.Errorf("%w: lending market %s", ErrNotInitialized, key)
	}
	return market, nil
}

func (e *Engine) loadReserve(market, key solana.PublicKey) (*state.Reserve, error) {
	reserve, err := e.state.GetReserve(key)
	if err != nil {
		return nil, err
	}
	if !reserve.IsInitialized() {
		return nil, fmt.Errorf("%w: reserve %s", ErrNotInitialized, key)
	}
	if !reserve.LendingMarket.Equals(market) {
		return nil, fmt.Errorf("%w: reserve %s", ErrInvalidAccount, key)
	}
	return reserve, nil
}

func (e *Engine) loadObligation(market, key solana.PublicKey) (*state.Obligation, error) {
	obligation, err := e.state.GetObligation(key)
	if err != nil {
		return nil, err
	}
	if !obligation.IsInitialized() {
		return nil, fmt.Errorf("%w: obligation %s", ErrNotInitialized, key)
	}
	if !obligation.LendingMarket.Equals(market) {
		return nil, fmt.Errorf("%w: obligation %s", ErrInvalidAccount, key)
	}
	return obligation, nil
}

// marketAuthority derives the program address that signs for every token
// account owned by the market.
func (e *Engine) marketAuthority(key solana.PublicKey, market *state.LendingMarket) (solana.PublicKey, error) {
	authority, err := solana.CreateProgramAddress([][]byte{key[:], {market.BumpSeed}}, e.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: market authority: %v", ErrInvalidAccount, err)
	}
	return authority, nil
}

func requireFreshReserve(key solana.PublicKey, reserve *state.Reserve, slot uint64) error {
	if reserve.LastUpdate.IsStale(slot) {
		return fmt.Errorf("%w: %s", ErrReserveStale, key)
	}
	return nil
}

func requireFreshObligation(key solana.PublicKey, obligation *state.Obligation, slot uint64) error {
	if obligation.LastUpdate.IsStale(slot) {
		return fmt.Errorf("%w: %s", ErrObligationStale, key)
	}
	return nil
}

// withReserves holds the reentry lock of every listed reserve for the
// duration of fn. The locked records are persisted before fn runs so that
// nested calls observe the lock, and every lock is cleared on return whether
// fn succeeded or not. fn receives working copies keyed by reserve.
func (e *Engine) withReserves(market solana.PublicKey, keys []solana.PublicKey, fn func(map[solana.PublicKey]*state.Reserve) error) (err error) {
	reserves := make(map[solana.PublicKey]*state.Reserve, len(keys))
	locked := make([]solana.PublicKey, 0, len(keys))
	defer func() {
		if releaseErr := e.releaseReserves(locked); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	for _, key := range keys {
		if _, seen := reserves[key]; seen {
			continue
		}
		reserve, err := e.loadReserve(market, key)
		if err != nil {
			return err
		}
		if reserve.ReentryLock {
			e.telemetry.IncReentryRejected()
			return fmt.Errorf("%w: %s", ErrReentrancyDetected, key)
		}
		reserve.ReentryLock = true
		if err := e.state.PutReserve(key, reserve); err != nil {
			return err
		}
		locked = append(locked, key)
		reserves[key] = reserve.Clone()
	}
	return fn(reserves)
}

func (e *Engine) releaseReserves(keys []solana.PublicKey) error {
	var first error
	for _, key := range keys {
		reserve, err := e.state.GetReserve(key)
		if err == nil && reserve == nil {
			err = fmt.Errorf("%w: reserve %s", ErrNotInitialized, key)
		}
		if err == nil {
			reserve.ReentryLock = false
			err = e.state.PutReserve(key, reserve)
		}
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (e *Engine) transfer(source, destination, authority solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := e.tokens.Transfer(source, destination, authority, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

func (e *Engine) mintTo(mint, destination, authority solana.PublicKey, amount uint64) error {
	if err := e.tokens.MintTo(mint, destination, authority, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

func (e *Engine) burn(mint, source, authority solana.PublicKey, amount uint64) error {
	if err := e.tokens.Burn(mint, source, authority, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// payFees routes the owner share of a fee to the reserve fee receiver and the
// host share to host when it is a registered receiver. Unregistered host
// shares go to the fee receiver.
func (e *Engine) payFees(reserve *state.Reserve, authority, host solana.PublicKey, fees FeeBreakdown) error {
	owner := fees.Owner()
	hostFee := fees.Host
	if hostFee > 0 && (host == (solana.PublicKey{}) || !reserve.Config.IsHostFeeReceiver(host)) {
		owner += hostFee
		hostFee = 0
	}
	if err := e.transfer(reserve.Liquidity.SupplyPubkey, reserve.Liquidity.FeeReceiver, authority, owner); err != nil {
		return err
	}
	return e.transfer(reserve.Liquidity.SupplyPubkey, host, authority, hostFee)
}

func (e *Engine) publishRates(key solana.PublicKey, reserve *state.Reserve) {
	if e.telemetry == nil {
		return
	}
	util, err := Utilization(&reserve.Liquidity)
	if err != nil {
		return
	}
	apr, err := NewInterestModel(&reserve.Config).BorrowRate(util)
	if err != nil {
		return
	}
	e.telemetry.SetReserveRates(key.String(), rateFloat(util), rateFloat(apr))
}

func rateFloat(r wad.Rate) float64 {
	return r.ToDecimal().Shopspring().InexactFloat64()
}
