package storage

import (
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
)

func recordKey(b byte) solana.PublicKey {
	var k solana.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

func openBackends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()
	level, err := Open("leveldb", filepath.Join(dir, "level"))
	require.NoError(t, err)
	bolt, err := Open("bolt", filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	mem, err := Open("memory", "")
	require.NoError(t, err)
	t.Cleanup(func() {
		level.Close()
		bolt.Close()
	})
	return map[string]Database{"memory": mem, "leveldb": level, "bolt": bolt}
}

func TestDatabaseBackends(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			value := []byte("value")
			require.NoError(t, db.Put([]byte("k"), value))
			value[0] = 'X'
			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("value"), got)

			require.NoError(t, db.Put([]byte("k"), []byte("second")))
			got, err = db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("second"), got)
		})
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("redis", "")
	require.Error(t, err)
}

func sampleReserve(t *testing.T) *state.Reserve {
	t.Helper()
	reserve, err := state.NewReserve(state.InitReserveParams{
		CurrentSlot:   7,
		LendingMarket: recordKey(1),
		Liquidity: state.ReserveLiquidity{
			MintPubkey:   recordKey(0x10),
			MintDecimals: 6,
			SupplyPubkey: recordKey(0x11),
			FeeReceiver:  recordKey(0x12),
			MarketPrice:  wad.FromInteger(2),
		},
		Collateral: state.ReserveCollateral{
			MintPubkey:   recordKey(0x20),
			SupplyPubkey: recordKey(0x21),
		},
		Config: state.ReserveConfig{
			OptimalUtilizationRate: 80,
			LoanToValueRatio:       50,
			LiquidationBonus:       5,
			LiquidationThreshold:   80,
			OptimalBorrowRate:      10,
			MaxBorrowRate:          100,
		},
	})
	require.NoError(t, err)
	require.NoError(t, reserve.Liquidity.Deposit(1_000))
	return reserve
}

func TestRecordStoreRoundTrip(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewRecordStore(db)

			market, err := store.GetLendingMarket(recordKey(1))
			require.NoError(t, err)
			require.Nil(t, market, "unwritten records load as nil")

			var quote [32]byte
			copy(quote[:], "USD")
			market = state.NewLendingMarket(state.InitLendingMarketParams{
				BumpSeed:      254,
				Owner:         recordKey(2),
				QuoteCurrency: quote,
			})
			require.NoError(t, store.PutLendingMarket(recordKey(1), market))
			loadedMarket, err := store.GetLendingMarket(recordKey(1))
			require.NoError(t, err)
			require.Equal(t, market, loadedMarket)

			reserve := sampleReserve(t)
			require.NoError(t, store.PutReserve(recordKey(3), reserve))
			loadedReserve, err := store.GetReserve(recordKey(3))
			require.NoError(t, err)
			require.Equal(t, uint64(1_000), loadedReserve.Liquidity.AvailableAmount)
			require.Equal(t, "2", loadedReserve.Liquidity.MarketPrice.String())
			require.Equal(t, reserve.Config.LoanToValueRatio, loadedReserve.Config.LoanToValueRatio)

			obligation := state.NewObligation(7, recordKey(1), recordKey(4))
			_, err = obligation.AddDeposit(recordKey(3), wad.Zero())
			require.NoError(t, err)
			obligation.Deposits[0].DepositedAmount = 500
			require.NoError(t, store.PutObligation(recordKey(5), obligation))
			loadedObligation, err := store.GetObligation(recordKey(5))
			require.NoError(t, err)
			require.Len(t, loadedObligation.Deposits, 1)
			require.Equal(t, uint64(500), loadedObligation.Deposits[0].DepositedAmount)

			// Keys are namespaced per kind.
			missing, err := store.GetReserve(recordKey(1))
			require.NoError(t, err)
			require.Nil(t, missing)
		})
	}
}

func TestRecordStoreRejectsCorruptRecords(t *testing.T) {
	db := NewMemDB()
	store := NewRecordStore(db)
	require.NoError(t, db.Put(RecordKey(KindReserve, recordKey(3)), []byte{1, 2, 3}))
	_, err := store.GetReserve(recordKey(3))
	require.ErrorIs(t, err, state.ErrDecode)

	require.Error(t, store.PutObligation(recordKey(5), nil))
	var unset *RecordStore
	_, err = unset.GetObligation(recordKey(5))
	require.Error(t, err)
}

func TestRecordStoreDigest(t *testing.T) {
	store := NewRecordStore(NewMemDB())
	_, err := store.Digest(KindReserve, recordKey(3))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Digest(RecordKind(9), recordKey(3))
	require.Error(t, err)

	reserve := sampleReserve(t)
	require.NoError(t, store.PutReserve(recordKey(3), reserve))
	first, err := store.Digest(KindReserve, recordKey(3))
	require.NoError(t, err)
	again, err := store.Digest(KindReserve, recordKey(3))
	require.NoError(t, err)
	require.Equal(t, first, again)

	require.NoError(t, reserve.Liquidity.Deposit(1))
	require.NoError(t, store.PutReserve(recordKey(3), reserve))
	changed, err := store.Digest(KindReserve, recordKey(3))
	require.NoError(t, err)
	require.NotEqual(t, first, changed)
}

func TestRecordKindString(t *testing.T) {
	require.Equal(t, "reserve", KindReserve.String())
	require.Equal(t, "RecordKind(9)", RecordKind(9).String())
	require.Len(t, RecordKey(KindObligation, recordKey(1)), len("lending/obligation/")+32)
}
