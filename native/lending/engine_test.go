package lending

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
)

// depositCollateral mints reserve collateral for user and posts it to the
// obligation, leaving the reserve fresh.
func (f *fixture) depositCollateral(acc reserveAccounts, user, obligation solana.PublicKey, amount uint64) {
	f.t.Helper()
	source := testKey(user[0], 0x40+acc.key[0])
	collateral := testKey(user[0], 0x80+acc.key[0])
	f.tokens.balances[source] += amount
	minted, err := f.engine.DepositReserveLiquidity(DepositReserveLiquidityRequest{
		Market:            f.market,
		Reserve:           acc.key,
		Source:            source,
		Destination:       collateral,
		TransferAuthority: user,
		Amount:            amount,
	})
	if err != nil {
		f.t.Fatalf("deposit liquidity: %v", err)
	}
	f.refreshReserve(acc)
	if err := f.engine.DepositObligationCollateral(DepositObligationCollateralRequest{
		Market:            f.market,
		Obligation:        obligation,
		Reserve:           acc.key,
		Source:            collateral,
		TransferAuthority: user,
		Amount:            minted,
	}); err != nil {
		f.t.Fatalf("deposit collateral: %v", err)
	}
}

func TestEngineLendingLifecycle(t *testing.T) {
	f := newFixture(t)
	usdc := f.addReserve(0x10, 6, "1", testConfig(), state.Bonus{}, 1_000_000)
	sol := f.addReserve(0x20, 6, "10", testConfig(), state.Bonus{}, 1_000_000)
	user, obligation := f.newUser(0x30)

	userSol := testKey(0x30, 3)
	userCSol := testKey(0x30, 4)
	userUsdc := testKey(0x30, 5)
	f.tokens.balances[userSol] = 10_000_000

	minted, err := f.engine.DepositReserveLiquidity(DepositReserveLiquidityRequest{
		Market:            f.market,
		Reserve:           sol.key,
		Source:            userSol,
		Destination:       userCSol,
		TransferAuthority: user,
		Amount:            10_000_000,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), minted)
	require.Equal(t, uint64(10_000_000), f.tokens.balances[userCSol])
	require.Equal(t, uint64(11_000_000), f.tokens.balances[sol.supply])
	require.True(t, f.reserve(sol).LastUpdate.Stale)
	require.False(t, f.reserve(sol).ReentryLock)
	f.refreshReserve(sol)

	require.NoError(t, f.engine.DepositObligationCollateral(DepositObligationCollateralRequest{
		Market:            f.market,
		Obligation:        obligation,
		Reserve:           sol.key,
		Source:            userCSol,
		TransferAuthority: user,
		Amount:            10_000_000,
	}))
	require.Equal(t, uint64(10_000_000), f.tokens.balances[sol.collateralSupply])

	refreshed := f.refreshObligation(obligation)
	require.Equal(t, "100", refreshed.DepositedValue.String())
	require.Equal(t, "50", refreshed.AllowedBorrowValue.String())
	require.Equal(t, "80", refreshed.UnhealthyBorrowValue.String())

	borrowed, err := f.engine.BorrowObligationLiquidity(BorrowObligationLiquidityRequest{
		Market:      f.market,
		Obligation:  obligation,
		Reserve:     usdc.key,
		Destination: userUsdc,
		Amount:      500_000,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(500_000), borrowed.ReceiveAmount)
	require.Equal(t, uint64(500_000), f.tokens.balances[userUsdc])

	usdcReserve := f.reserve(usdc)
	require.Equal(t, uint64(500_000), usdcReserve.Liquidity.AvailableAmount)
	rate, err := CurrentBorrowRate(usdcReserve)
	require.NoError(t, err)
	require.Equal(t, "0.0625", rate.String())
	require.True(t, f.obligation(obligation).LastUpdate.Stale)

	f.clock.slot += 1_000_000
	f.refreshReserve(usdc)
	f.refreshReserve(sol)
	refreshed = f.refreshObligation(obligation)
	require.Len(t, refreshed.Borrows, 1)
	require.Equal(t, 1, refreshed.Borrows[0].BorrowedAmountWad.Cmp(wad.FromInteger(500_000)))

	f.tokens.balances[userUsdc] += 10_000
	repaid, err := f.engine.RepayObligationLiquidity(RepayObligationLiquidityRequest{
		Market:            f.market,
		Obligation:        obligation,
		Reserve:           usdc.key,
		Source:            userUsdc,
		TransferAuthority: user,
		Amount:            MaxAmount,
	})
	require.NoError(t, err)
	require.Greater(t, repaid.RepayAmount, uint64(500_000))
	require.Equal(t, uint64(500_000)+repaid.RepayAmount, f.tokens.balances[usdc.supply])
	require.Empty(t, f.obligation(obligation).Borrows)

	f.refreshObligation(obligation)
	withdrawn, err := f.engine.WithdrawObligationCollateral(WithdrawObligationCollateralRequest{
		Market:      f.market,
		Obligation:  obligation,
		Reserve:     sol.key,
		Destination: userCSol,
		Amount:      MaxAmount,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), withdrawn)
	require.Empty(t, f.obligation(obligation).Deposits)

	released, err := f.engine.RedeemReserveCollateral(RedeemReserveCollateralRequest{
		Market:            f.market,
		Reserve:           sol.key,
		Source:            userCSol,
		Destination:       userSol,
		TransferAuthority: user,
		Amount:            10_000_000,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), released)
	require.Equal(t, uint64(10_000_000), f.tokens.balances[userSol])
	require.Zero(t, f.tokens.balances[userCSol])
}

func TestEngineBorrowChecks(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig()
	cfg.Fees = state.ReserveFees{BorrowFeeWad: 10_000_000_000_000_000, HostFeePercentage: 20}
	usdc := f.addReserve(0x10, 6, "1", cfg, state.Bonus{}, 100_000_000)
	sol := f.addReserve(0x20, 6, "10", testConfig(), state.Bonus{}, 1_000_000)
	user, obligation := f.newUser(0x30)
	destination := testKey(0x30, 5)

	borrow := func(amount uint64) (BorrowResult, error) {
		return f.engine.BorrowObligationLiquidity(BorrowObligationLiquidityRequest{
			Market:          f.market,
			Obligation:      obligation,
			Reserve:         usdc.key,
			Destination:     destination,
			HostFeeReceiver: usdc.hostReceiver,
			Amount:          amount,
		})
	}

	f.refreshObligation(obligation)
	_, err := borrow(1_000_000)
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	f.depositCollateral(sol, user, obligation, 10_000_000)
	_, err = borrow(1_000_000)
	require.ErrorIs(t, err, ErrObligationStale)
	f.refreshObligation(obligation)

	// $100 of collateral at 50% LTV allows $50 including the 1% fee.
	_, err = borrow(50_000_000)
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	result, err := borrow(10_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), result.Fees.Total)
	require.Equal(t, uint64(20_000), result.Fees.Host)
	require.Equal(t, "10100000", result.BorrowAmount.String())
	require.Equal(t, uint64(10_000_000), f.tokens.balances[destination])
	// The host is not registered on the reserve, so the owner receives the whole fee.
	require.Equal(t, uint64(100_000), f.tokens.balances[usdc.feeReceiver])
	require.Zero(t, f.tokens.balances[usdc.hostReceiver])
	require.Equal(t, uint64(100_000_000-10_100_000), f.reserve(usdc).Liquidity.AvailableAmount)

	_, err = borrow(1_000)
	require.ErrorIs(t, err, ErrReserveStale)

	cfg.BorrowPaused = true
	require.NoError(t, f.engine.SetReserveConfig(f.market, usdc.key, cfg))
	f.refreshReserve(usdc)
	f.refreshObligation(obligation)
	_, err = borrow(1_000)
	require.ErrorIs(t, err, ErrOperationPaused)
	require.False(t, f.reserve(usdc).ReentryLock)
}

func TestEngineMaxBorrowUsesRemainingCapacity(t *testing.T) {
	f := newFixture(t)
	usdc := f.addReserve(0x10, 6, "1", testConfig(), state.Bonus{}, 100_000_000)
	sol := f.addReserve(0x20, 6, "10", testConfig(), state.Bonus{}, 1_000_000)
	user, obligation := f.newUser(0x30)
	f.depositCollateral(sol, user, obligation, 10_000_000)
	f.refreshObligation(obligation)

	result, err := f.engine.BorrowObligationLiquidity(BorrowObligationLiquidityRequest{
		Market:      f.market,
		Obligation:  obligation,
		Reserve:     usdc.key,
		Destination: testKey(0x30, 5),
		Amount:      MaxAmount,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(50_000_000), result.ReceiveAmount)

	f.refreshReserve(usdc)
	refreshed := f.refreshObligation(obligation)
	require.Equal(t, 0, refreshed.BorrowedValue.Cmp(refreshed.AllowedBorrowValue))
	require.True(t, IsHealthy(refreshed))
}

// writeObligation replaces an obligation record with a fresh hand-built
// position.
func (f *fixture) writeObligation(key solana.PublicKey, mutate func(*state.Obligation)) {
	f.t.Helper()
	obligation := f.obligation(key)
	mutate(obligation)
	obligation.LastUpdate.Update(f.clock.slot)
	if err := f.state.PutObligation(key, obligation); err != nil {
		f.t.Fatalf("put obligation: %v", err)
	}
}

func liquidationFixture(t *testing.T, borrowedValue uint64) (*fixture, reserveAccounts, reserveAccounts, solana.PublicKey) {
	f := newFixture(t)
	usd := f.addReserve(0x10, 0, "1", testConfig(), state.Bonus{}, 1_000)
	col := f.addReserve(0x20, 0, "1", testConfig(), state.Bonus{}, 1_000)
	_, obligation := f.newUser(0x30)
	f.tokens.balances[col.collateralSupply] = 125
	f.writeObligation(obligation, func(o *state.Obligation) {
		o.Deposits = []state.ObligationCollateral{{
			DepositReserve:  col.key,
			DepositedAmount: 125,
			MarketValue:     wad.FromInteger(125),
		}}
		o.Borrows = []state.ObligationLiquidity{{
			BorrowReserve:           usd.key,
			CumulativeBorrowRateWad: wad.One(),
			BorrowedAmountWad:       wad.FromInteger(110),
			MarketValue:             wad.FromInteger(110),
		}}
		o.DepositedValue = wad.FromInteger(125)
		o.BorrowedValue = wad.FromInteger(borrowedValue)
		o.AllowedBorrowValue = wad.MustParseDecimal("62.5")
		o.UnhealthyBorrowValue = wad.FromInteger(100)
	})
	return f, usd, col, obligation
}

func TestEngineLiquidation(t *testing.T) {
	liquidators := []struct {
		name string
		run  func(*Engine, LiquidateObligationRequest) (LiquidationResult, error)
	}{
		{name: "LiquidateObligation", run: (*Engine).LiquidateObligation},
		{name: "LiquidateObligation2", run: (*Engine).LiquidateObligation2},
	}
	for _, tc := range liquidators {
		t.Run(tc.name, func(t *testing.T) {
			f, usd, col, obligation := liquidationFixture(t, 110)
			liquidator := testKey(0x50, 1)
			source := testKey(0x50, 2)
			destination := testKey(0x50, 3)
			f.signers[liquidator] = true
			f.tokens.balances[source] = 1_000

			result, err := tc.run(f.engine, LiquidateObligationRequest{
				Market:            f.market,
				Obligation:        obligation,
				RepayReserve:      usd.key,
				WithdrawReserve:   col.key,
				Source:            source,
				Destination:       destination,
				TransferAuthority: liquidator,
				Amount:            MaxAmount,
			})
			require.NoError(t, err)
			require.Equal(t, "55", result.SettleAmount.String())
			require.Equal(t, uint64(55), result.RepayAmount)
			require.Equal(t, uint64(57), result.WithdrawAmount)

			require.Equal(t, uint64(57), f.tokens.balances[destination])
			require.Equal(t, uint64(1_000-55), f.tokens.balances[source])
			require.Equal(t, uint64(1_055), f.tokens.balances[usd.supply])

			after := f.obligation(obligation)
			require.Equal(t, "55", after.Borrows[0].BorrowedAmountWad.String())
			require.Equal(t, uint64(68), after.Deposits[0].DepositedAmount)
			require.True(t, after.LastUpdate.Stale)
			require.False(t, f.reserve(usd).ReentryLock)
			require.False(t, f.reserve(col).ReentryLock)
		})
	}
}

func TestEngineLiquidationRejectsHealthyObligation(t *testing.T) {
	f, usd, col, obligation := liquidationFixture(t, 90)
	liquidator := testKey(0x50, 1)
	f.signers[liquidator] = true
	f.tokens.balances[testKey(0x50, 2)] = 1_000

	req := LiquidateObligationRequest{
		Market:            f.market,
		Obligation:        obligation,
		RepayReserve:      usd.key,
		WithdrawReserve:   col.key,
		Source:            testKey(0x50, 2),
		Destination:       testKey(0x50, 3),
		TransferAuthority: liquidator,
		Amount:            MaxAmount,
	}
	_, err := f.engine.LiquidateObligation(req)
	require.ErrorIs(t, err, ErrObligationHealthy)
	require.False(t, f.reserve(usd).ReentryLock)
	require.Equal(t, uint64(1_000), f.tokens.balances[testKey(0x50, 2)])

	cfg := testConfig()
	cfg.LiquidationPaused = true
	require.NoError(t, f.engine.SetReserveConfig(f.market, usd.key, cfg))
	_, err = f.engine.LiquidateObligation2(req)
	require.ErrorIs(t, err, ErrOperationPaused)
}

func TestEngineWithdrawBounds(t *testing.T) {
	f := newFixture(t)
	col := f.addReserve(0x20, 0, "1", testConfig(), state.Bonus{}, 1_000)
	_, obligation := f.newUser(0x30)
	f.tokens.balances[col.collateralSupply] = 100
	f.writeObligation(obligation, func(o *state.Obligation) {
		o.Deposits = []state.ObligationCollateral{{
			DepositReserve:  col.key,
			DepositedAmount: 100,
			MarketValue:     wad.FromInteger(100),
		}}
		o.DepositedValue = wad.FromInteger(100)
		o.AllowedBorrowValue = wad.FromInteger(50)
		o.UnhealthyBorrowValue = wad.FromInteger(80)
	})
	destination := testKey(0x30, 9)
	withdraw := func(amount uint64) (uint64, error) {
		return f.engine.WithdrawObligationCollateral(WithdrawObligationCollateralRequest{
			Market:      f.market,
			Obligation:  obligation,
			Reserve:     col.key,
			Destination: destination,
			Amount:      amount,
		})
	}

	_, err := withdraw(101)
	require.ErrorIs(t, err, ErrWithdrawTooLarge)

	amount, err := withdraw(MaxAmount)
	require.NoError(t, err)
	require.Equal(t, uint64(100), amount)
	require.Equal(t, uint64(100), f.tokens.balances[destination])
	require.Empty(t, f.obligation(obligation).Deposits)

	_, err = withdraw(1)
	require.ErrorIs(t, err, ErrObligationStale)
}

func TestEngineDepositGuards(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig()
	cfg.DepositLimit = 1_000_010
	usdc := f.addReserve(0x10, 6, "1", cfg, state.Bonus{}, 1_000_000)
	user := testKey(0x30, 1)
	source := testKey(0x30, 2)
	f.tokens.balances[source] = 1_000

	deposit := func(amount uint64) error {
		_, err := f.engine.DepositReserveLiquidity(DepositReserveLiquidityRequest{
			Market:            f.market,
			Reserve:           usdc.key,
			Source:            source,
			Destination:       testKey(0x30, 3),
			TransferAuthority: user,
			Amount:            amount,
		})
		return err
	}

	require.ErrorIs(t, deposit(5), ErrInvalidSigner)
	f.signers[user] = true
	require.ErrorIs(t, deposit(0), ErrInvalidAmount)
	require.ErrorIs(t, deposit(11), ErrDepositLimit)
	require.NoError(t, deposit(10))
	require.ErrorIs(t, deposit(1), ErrReserveStale)

	cfg.DepositLimit = 0
	cfg.DepositPaused = true
	require.NoError(t, f.engine.SetReserveConfig(f.market, usdc.key, cfg))
	f.refreshReserve(usdc)
	require.ErrorIs(t, deposit(1), ErrOperationPaused)

	bad := testConfig()
	bad.LoanToValueRatio = 90
	require.ErrorIs(t, f.engine.SetReserveConfig(f.market, usdc.key, bad), ErrInvalidConfig)

	delete(f.signers, f.owner)
	require.ErrorIs(t, f.engine.SetReserveConfig(f.market, usdc.key, testConfig()), ErrInvalidSigner)
}

func TestEngineRejectsLockedReserve(t *testing.T) {
	f := newFixture(t)
	usdc := f.addReserve(0x10, 6, "1", testConfig(), state.Bonus{}, 1_000_000)
	reserve := f.reserve(usdc)
	reserve.ReentryLock = true
	require.NoError(t, f.state.PutReserve(usdc.key, reserve))

	_, err := f.engine.RefreshReserve(f.market, usdc.key)
	require.ErrorIs(t, err, ErrReentrancyDetected)
	require.True(t, f.reserve(usdc).ReentryLock, "a lock held elsewhere must not be released")
}

func TestEngineFlashLoan(t *testing.T) {
	setup := func(t *testing.T) (*fixture, reserveAccounts, solana.PublicKey, solana.PublicKey) {
		f := newFixture(t)
		cfg := testConfig()
		hostReceiver := testKey(0x10, 5)
		cfg.Fees = state.ReserveFees{
			FlashLoanFeeWad:   3_000_000_000_000_000,
			HostFeePercentage: 20,
			HostFeeReceivers:  []solana.PublicKey{hostReceiver},
		}
		usdc := f.addReserve(0x10, 6, "1", cfg, state.Bonus{}, 1_000_000)
		borrower := testKey(0x60, 1)
		f.signers[borrower] = true
		destination := testKey(0x60, 2)
		f.tokens.balances[destination] = 3_000
		return f, usdc, borrower, destination
	}

	t.Run("repaid", func(t *testing.T) {
		f, usdc, borrower, destination := setup(t)
		var received, owed uint64
		fees, err := f.engine.FlashLoan(FlashLoanRequest{
			Market:          f.market,
			Reserve:         usdc.key,
			Destination:     destination,
			HostFeeReceiver: usdc.hostReceiver,
			Authority:       borrower,
			Amount:          MaxAmount,
			Data:            []byte{0xde, 0xad},
			Receiver: FlashLoanReceiverFunc(func(amount, fee uint64, data []byte) error {
				received, owed = amount, fee
				require.True(t, f.reserve(usdc).ReentryLock)
				return f.tokens.Transfer(destination, usdc.supply, borrower, amount+fee)
			}),
		})
		require.NoError(t, err)
		require.Equal(t, uint64(1_000_000), received)
		require.Equal(t, uint64(3_000), owed)
		require.Equal(t, FeeBreakdown{Total: 3_000, Host: 600}, fees)
		require.Equal(t, uint64(2_400), f.tokens.balances[usdc.feeReceiver])
		require.Equal(t, uint64(600), f.tokens.balances[usdc.hostReceiver])
		require.Equal(t, uint64(1_000_000), f.tokens.balances[usdc.supply])
		require.Zero(t, f.tokens.balances[destination])
		require.False(t, f.reserve(usdc).ReentryLock)
	})

	t.Run("not repaid", func(t *testing.T) {
		f, usdc, borrower, destination := setup(t)
		_, err := f.engine.FlashLoan(FlashLoanRequest{
			Market:      f.market,
			Reserve:     usdc.key,
			Destination: destination,
			Authority:   borrower,
			Amount:      500_000,
			Receiver: FlashLoanReceiverFunc(func(amount, fee uint64, data []byte) error {
				return f.tokens.Transfer(destination, usdc.supply, borrower, amount)
			}),
		})
		require.ErrorIs(t, err, ErrFlashLoanNotRepaid)
		require.False(t, f.reserve(usdc).ReentryLock)
	})

	t.Run("reentry", func(t *testing.T) {
		f, usdc, borrower, destination := setup(t)
		var inner error
		_, err := f.engine.FlashLoan(FlashLoanRequest{
			Market:      f.market,
			Reserve:     usdc.key,
			Destination: destination,
			Authority:   borrower,
			Amount:      500_000,
			Receiver: FlashLoanReceiverFunc(func(amount, fee uint64, data []byte) error {
				_, inner = f.engine.DepositReserveLiquidity(DepositReserveLiquidityRequest{
					Market:            f.market,
					Reserve:           usdc.key,
					Source:            destination,
					Destination:       testKey(0x60, 3),
					TransferAuthority: borrower,
					Amount:            amount,
				})
				return inner
			}),
		})
		require.ErrorIs(t, inner, ErrReentrancyDetected)
		require.ErrorIs(t, err, ErrReentrancyDetected)
		require.False(t, f.reserve(usdc).ReentryLock)
	})

	t.Run("too large", func(t *testing.T) {
		f, usdc, borrower, destination := setup(t)
		_, err := f.engine.FlashLoan(FlashLoanRequest{
			Market:      f.market,
			Reserve:     usdc.key,
			Destination: destination,
			Authority:   borrower,
			Amount:      1_000_001,
			Receiver:    FlashLoanReceiverFunc(func(uint64, uint64, []byte) error { return nil }),
		})
		require.ErrorIs(t, err, ErrInsufficientLiquidity)
	})
}

func TestEngineClaimOwnerFee(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig()
	cfg.Fees.ReserveOwnerFeeWad = 100_000_000_000_000_000
	usdc := f.addReserve(0x10, 6, "1", cfg, state.Bonus{}, 1_000_000)
	sol := f.addReserve(0x20, 6, "10", testConfig(), state.Bonus{}, 1_000_000)
	user, obligation := f.newUser(0x30)
	f.depositCollateral(sol, user, obligation, 10_000_000)
	f.refreshObligation(obligation)
	_, err := f.engine.BorrowObligationLiquidity(BorrowObligationLiquidityRequest{
		Market:      f.market,
		Obligation:  obligation,
		Reserve:     usdc.key,
		Destination: testKey(0x30, 5),
		Amount:      500_000,
	})
	require.NoError(t, err)

	f.refreshReserve(usdc)
	_, err = f.engine.ClaimOwnerFee(ClaimOwnerFeeRequest{Market: f.market, Reserve: usdc.key})
	require.ErrorIs(t, err, ErrInvalidAmount)

	f.clock.slot += 1_000_000
	before := f.refreshReserve(usdc)
	require.Equal(t, 1, before.Liquidity.OwnerUnclaimed.Cmp(wad.One()))

	claimed, err := f.engine.ClaimOwnerFee(ClaimOwnerFeeRequest{Market: f.market, Reserve: usdc.key})
	require.NoError(t, err)
	require.Greater(t, claimed, uint64(0))
	require.Equal(t, claimed, f.tokens.balances[usdc.feeReceiver])

	after := f.reserve(usdc)
	require.Equal(t, -1, after.Liquidity.OwnerUnclaimed.Cmp(wad.One()))
	require.Equal(t, before.Liquidity.AvailableAmount-claimed, after.Liquidity.AvailableAmount)
}

func TestEngineObligationMining(t *testing.T) {
	f := newFixture(t)
	bonus := state.Bonus{TotalMiningSpeed: 1_000, KinkUtilRate: 800_000_000_000_000_000}
	mine := f.addReserve(0x10, 0, "1", testConfig(), bonus, 1_000)
	user, obligation := f.newUser(0x30)
	f.tokens.balances[testKey(0x03, 1)] = 10_000

	f.depositCollateral(mine, user, obligation, 1_000)
	f.clock.slot += 10
	reserve := f.refreshReserve(mine)
	require.Equal(t, "5", reserve.Bonus.LTokenMiningIndex.String())

	refreshed := f.refreshObligation(obligation)
	require.Equal(t, "5000", refreshed.UnclaimedMine.String())
	require.Equal(t, "5", refreshed.Deposits[0].Index.String())

	destination := testKey(0x30, 7)
	claimed, err := f.engine.ClaimObligationMine(ClaimObligationMineRequest{
		Market:      f.market,
		Obligation:  obligation,
		Destination: destination,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5_000), claimed)
	require.Equal(t, uint64(5_000), f.tokens.balances[destination])
	require.True(t, f.obligation(obligation).UnclaimedMine.IsZero())
}

func TestEngineRefreshObligationRequiresFreshReserves(t *testing.T) {
	f := newFixture(t)
	sol := f.addReserve(0x20, 6, "10", testConfig(), state.Bonus{}, 1_000_000)
	user, obligation := f.newUser(0x30)
	f.depositCollateral(sol, user, obligation, 1_000_000)

	f.clock.slot++
	_, err := f.engine.RefreshObligation(f.market, obligation)
	require.ErrorIs(t, err, ErrReserveStale)

	f.refreshReserve(sol)
	f.refreshObligation(obligation)
}

func TestEngineMarketOwnership(t *testing.T) {
	f := newFixture(t)
	next := testKey(0x70, 1)

	_, err := f.engine.InitLendingMarket(InitLendingMarketRequest{
		Market:    f.market,
		Authority: f.owner,
		Params:    state.InitLendingMarketParams{Owner: f.owner},
	})
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	require.NoError(t, f.engine.SetLendingMarketOwner(f.market, next))
	market, err := f.state.GetLendingMarket(f.market)
	require.NoError(t, err)
	require.Equal(t, next, market.PendingOwner)
	require.Equal(t, f.owner, market.Owner)

	require.ErrorIs(t, f.engine.ReceivePendingOwner(f.market), ErrInvalidSigner)
	f.signers[next] = true
	require.NoError(t, f.engine.ReceivePendingOwner(f.market))

	market, err = f.state.GetLendingMarket(f.market)
	require.NoError(t, err)
	require.Equal(t, next, market.Owner)
	require.Equal(t, solana.PublicKey{}, market.PendingOwner)
	require.ErrorIs(t, f.engine.ReceivePendingOwner(f.market), ErrInvalidAccount)

	delete(f.signers, next)
	require.ErrorIs(t, f.engine.SetLendingMarketOwner(f.market, f.owner), ErrInvalidSigner)
}

func TestEngineRequiresCollaborators(t *testing.T) {
	var nilEngine *Engine
	_, err := nilEngine.RefreshReserve(solana.PublicKey{}, solana.PublicKey{})
	if !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}

	engine := NewEngine(Options{})
	engine.SetState(newMockEngineState())
	if _, err := engine.InitObligation(solana.PublicKey{}, solana.PublicKey{}, solana.PublicKey{}); !errors.Is(err, errMissingCollaborator) {
		t.Fatalf("expected errMissingCollaborator, got %v", err)
	}
	if engine.slotsPerYear != state.DefaultSlotsPerYear {
		t.Fatalf("expected default slots per year, got %d", engine.slotsPerYear)
	}
}
