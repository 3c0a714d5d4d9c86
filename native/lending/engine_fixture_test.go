package lending

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
)

// mockEngineState keeps records in their encoded form so every engine write
// goes through the codec.
type mockEngineState struct {
	markets     map[solana.PublicKey][]byte
	reserves    map[solana.PublicKey][]byte
	obligations map[solana.PublicKey][]byte
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		markets:     make(map[solana.PublicKey][]byte),
		reserves:    make(map[solana.PublicKey][]byte),
		obligations: make(map[solana.PublicKey][]byte),
	}
}

func (m *mockEngineState) GetLendingMarket(key solana.PublicKey) (*state.LendingMarket, error) {
	data, ok := m.markets[key]
	if !ok {
		return nil, nil
	}
	return state.DecodeLendingMarket(data)
}

func (m *mockEngineState) PutLendingMarket(key solana.PublicKey, market *state.LendingMarket) error {
	data, err := market.MarshalBinary()
	if err != nil {
		return err
	}
	m.markets[key] = data
	return nil
}

func (m *mockEngineState) GetReserve(key solana.PublicKey) (*state.Reserve, error) {
	data, ok := m.reserves[key]
	if !ok {
		return nil, nil
	}
	return state.DecodeReserve(data)
}

func (m *mockEngineState) PutReserve(key solana.PublicKey, reserve *state.Reserve) error {
	data, err := reserve.MarshalBinary()
	if err != nil {
		return err
	}
	m.reserves[key] = data
	return nil
}

func (m *mockEngineState) GetObligation(key solana.PublicKey) (*state.Obligation, error) {
	data, ok := m.obligations[key]
	if !ok {
		return nil, nil
	}
	return state.DecodeObligation(data)
}

func (m *mockEngineState) PutObligation(key solana.PublicKey, obligation *state.Obligation) error {
	data, err := obligation.MarshalBinary()
	if err != nil {
		return err
	}
	m.obligations[key] = data
	return nil
}

var errLedgerFunds = errors.New("ledger: insufficient funds")

// tokenLedger is an in-memory token program. Accounts listed in owners only
// accept their owner as transfer authority.
type tokenLedger struct {
	balances map[solana.PublicKey]uint64
	supply   map[solana.PublicKey]uint64
	owners   map[solana.PublicKey]solana.PublicKey
}

func newTokenLedger() *tokenLedger {
	return &tokenLedger{
		balances: make(map[solana.PublicKey]uint64),
		supply:   make(map[solana.PublicKey]uint64),
		owners:   make(map[solana.PublicKey]solana.PublicKey),
	}
}

func (l *tokenLedger) checkOwner(account, authority solana.PublicKey) error {
	if owner, ok := l.owners[account]; ok && owner != authority {
		return fmt.Errorf("ledger: %s is not the owner of %s", authority, account)
	}
	return nil
}

func (l *tokenLedger) Transfer(source, destination, authority solana.PublicKey, amount uint64) error {
	if err := l.checkOwner(source, authority); err != nil {
		return err
	}
	if l.balances[source] < amount {
		return errLedgerFunds
	}
	l.balances[source] -= amount
	l.balances[destination] += amount
	return nil
}

func (l *tokenLedger) MintTo(mint, destination, authority solana.PublicKey, amount uint64) error {
	if err := l.checkOwner(mint, authority); err != nil {
		return err
	}
	l.supply[mint] += amount
	l.balances[destination] += amount
	return nil
}

func (l *tokenLedger) Burn(mint, source, authority solana.PublicKey, amount uint64) error {
	if err := l.checkOwner(source, authority); err != nil {
		return err
	}
	if l.balances[source] < amount {
		return errLedgerFunds
	}
	l.balances[source] -= amount
	l.supply[mint] -= amount
	return nil
}

func (l *tokenLedger) Balance(account solana.PublicKey) (uint64, error) {
	return l.balances[account], nil
}

type priceFeed map[solana.PublicKey]wad.Decimal

func (p priceFeed) CurrentOraclePrice(account solana.PublicKey) (wad.Decimal, error) {
	price, ok := p[account]
	if !ok {
		return wad.Decimal{}, fmt.Errorf("oracle: no price for %s", account)
	}
	return price, nil
}

type testClock struct{ slot uint64 }

func (c *testClock) CurrentSlot() uint64 { return c.slot }

type signerSet map[solana.PublicKey]bool

func (s signerSet) VerifySigner(account solana.PublicKey) bool { return s[account] }

func testKey(tag, n byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = tag
	key[1] = n
	key[31] = 0x5a
	return key
}

func testConfig() state.ReserveConfig {
	return state.ReserveConfig{
		OptimalUtilizationRate: 80,
		LoanToValueRatio:       50,
		LiquidationBonus:       5,
		LiquidationThreshold:   80,
		MinBorrowRate:          0,
		OptimalBorrowRate:      10,
		MaxBorrowRate:          100,
	}
}

type reserveAccounts struct {
	key              solana.PublicKey
	mint             solana.PublicKey
	supply           solana.PublicKey
	feeReceiver      solana.PublicKey
	hostReceiver     solana.PublicKey
	collateralMint   solana.PublicKey
	collateralSupply solana.PublicKey
	oracle           solana.PublicKey
}

type fixture struct {
	t         *testing.T
	engine    *Engine
	state     *mockEngineState
	tokens    *tokenLedger
	prices    priceFeed
	clock     *testClock
	signers   signerSet
	market    solana.PublicKey
	owner     solana.PublicKey
	authority solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		engine:  NewEngine(Options{ProgramID: testKey(0xEE, 1)}),
		state:   newMockEngineState(),
		tokens:  newTokenLedger(),
		prices:  priceFeed{},
		clock:   &testClock{slot: 100},
		signers: signerSet{},
		market:  testKey(0x01, 1),
		owner:   testKey(0x02, 1),
	}
	f.engine.SetState(f.state)
	f.engine.SetTokenProgram(f.tokens)
	f.engine.SetOracle(f.prices)
	f.engine.SetClock(f.clock)
	f.engine.SetSigners(f.signers)
	f.engine.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	f.signers[f.owner] = true
	var quote [32]byte
	copy(quote[:], "USD")
	if _, err := f.engine.InitLendingMarket(InitLendingMarketRequest{
		Market:    f.market,
		Authority: f.owner,
		Params:    state.InitLendingMarketParams{Owner: f.owner, QuoteCurrency: quote, MineSupplyAccount: testKey(0x03, 1)},
	}); err != nil {
		t.Fatalf("init market: %v", err)
	}
	authority, err := f.engine.MarketAuthority(f.market)
	if err != nil {
		t.Fatalf("market authority: %v", err)
	}
	f.authority = authority
	f.tokens.owners[testKey(0x03, 1)] = authority
	return f
}

// addReserve lists a reserve seeded by the market owner and refreshes it.
func (f *fixture) addReserve(tag byte, decimals uint8, price string, cfg state.ReserveConfig, bonus state.Bonus, seed uint64) reserveAccounts {
	f.t.Helper()
	acc := reserveAccounts{
		key:              testKey(tag, 1),
		mint:             testKey(tag, 2),
		supply:           testKey(tag, 3),
		feeReceiver:      testKey(tag, 4),
		hostReceiver:     testKey(tag, 5),
		collateralMint:   testKey(tag, 6),
		collateralSupply: testKey(tag, 7),
		oracle:           testKey(tag, 8),
	}
	f.prices[acc.oracle] = wad.MustParseDecimal(price)
	f.tokens.owners[acc.supply] = f.authority
	f.tokens.owners[acc.collateralSupply] = f.authority
	f.tokens.owners[acc.collateralMint] = f.authority

	source := testKey(tag, 9)
	f.tokens.balances[source] = seed
	if _, err := f.engine.InitReserve(InitReserveRequest{
		Market:            f.market,
		Reserve:           acc.key,
		Source:            source,
		Destination:       testKey(tag, 10),
		TransferAuthority: f.owner,
		LiquidityAmount:   seed,
		Liquidity: state.ReserveLiquidity{
			MintPubkey:    acc.mint,
			MintDecimals:  decimals,
			SupplyPubkey:  acc.supply,
			FeeReceiver:   acc.feeReceiver,
			UsePythOracle: true,
			OracleParams1: acc.oracle,
		},
		Collateral: state.ReserveCollateral{
			MintPubkey:   acc.collateralMint,
			SupplyPubkey: acc.collateralSupply,
		},
		Config: cfg,
		Bonus:  bonus,
	}); err != nil {
		f.t.Fatalf("init reserve %x: %v", tag, err)
	}
	f.refreshReserve(acc)
	return acc
}

func (f *fixture) refreshReserve(acc reserveAccounts) *state.Reserve {
	f.t.Helper()
	reserve, err := f.engine.RefreshReserve(f.market, acc.key)
	if err != nil {
		f.t.Fatalf("refresh reserve: %v", err)
	}
	return reserve
}

func (f *fixture) refreshObligation(key solana.PublicKey) *state.Obligation {
	f.t.Helper()
	obligation, err := f.engine.RefreshObligation(f.market, key)
	if err != nil {
		f.t.Fatalf("refresh obligation: %v", err)
	}
	return obligation
}

func (f *fixture) reserve(acc reserveAccounts) *state.Reserve {
	f.t.Helper()
	reserve, err := f.state.GetReserve(acc.key)
	if err != nil || reserve == nil {
		f.t.Fatalf("load reserve: %v", err)
	}
	return reserve
}

func (f *fixture) obligation(key solana.PublicKey) *state.Obligation {
	f.t.Helper()
	obligation, err := f.state.GetObligation(key)
	if err != nil || obligation == nil {
		f.t.Fatalf("load obligation: %v", err)
	}
	return obligation
}

// newUser creates a signing user with an obligation.
func (f *fixture) newUser(tag byte) (user, obligation solana.PublicKey) {
	f.t.Helper()
	user = testKey(tag, 1)
	obligation = testKey(tag, 2)
	f.signers[user] = true
	if _, err := f.engine.InitObligation(f.market, obligation, user); err != nil {
		f.t.Fatalf("init obligation: %v", err)
	}
	return user, obligation
}
