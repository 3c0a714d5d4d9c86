package storage

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/blake3"

	"lendingcore/native/lending/state"
)

// RecordKind selects the key space of a persisted lending record.
type RecordKind uint8

const (
	KindLendingMarket RecordKind = iota + 1
	KindReserve
	KindObligation
)

var kindPrefixes = map[RecordKind]string{
	KindLendingMarket: "lending/market/",
	KindReserve:       "lending/reserve/",
	KindObligation:    "lending/obligation/",
}

func (k RecordKind) String() string {
	switch k {
	case KindLendingMarket:
		return "lending market"
	case KindReserve:
		return "reserve"
	case KindObligation:
		return "obligation"
	default:
		return fmt.Sprintf("RecordKind(%d)", uint8(k))
	}
}

// RecordKey is the database key for a record of the given kind.
func RecordKey(kind RecordKind, key solana.PublicKey) []byte {
	prefix := kindPrefixes[kind]
	out := make([]byte, 0, len(prefix)+solana.PublicKeyLength)
	out = append(out, prefix...)
	return append(out, key[:]...)
}

// RecordStore persists lending records as their fixed-size binary layout.
// Getters return nil, nil for keys that have never been written.
type RecordStore struct {
	db Database
}

func NewRecordStore(db Database) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) load(kind RecordKind, key solana.PublicKey) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage: record store not configured")
	}
	data, err := s.db.Get(RecordKey(kind, key))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load %s %s: %w", kind, key, err)
	}
	return data, nil
}

type binaryRecord interface {
	MarshalBinary() ([]byte, error)
}

func (s *RecordStore) store(kind RecordKind, key solana.PublicKey, record binaryRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: record store not configured")
	}
	data, err := record.MarshalBinary()
	if err != nil {
		return fmt.Errorf("storage: encode %s %s: %w", kind, key, err)
	}
	if err := s.db.Put(RecordKey(kind, key), data); err != nil {
		return fmt.Errorf("storage: store %s %s: %w", kind, key, err)
	}
	return nil
}

func (s *RecordStore) GetLendingMarket(key solana.PublicKey) (*state.LendingMarket, error) {
	data, err := s.load(KindLendingMarket, key)
	if err != nil || data == nil {
		return nil, err
	}
	return state.DecodeLendingMarket(data)
}

func (s *RecordStore) PutLendingMarket(key solana.PublicKey, market *state.LendingMarket) error {
	if market == nil {
		return fmt.Errorf("storage: nil lending market")
	}
	return s.store(KindLendingMarket, key, market)
}

func (s *RecordStore) GetReserve(key solana.PublicKey) (*state.Reserve, error) {
	data, err := s.load(KindReserve, key)
	if err != nil || data == nil {
		return nil, err
	}
	return state.DecodeReserve(data)
}

func (s *RecordStore) PutReserve(key solana.PublicKey, reserve *state.Reserve) error {
	if reserve == nil {
		return fmt.Errorf("storage: nil reserve")
	}
	return s.store(KindReserve, key, reserve)
}

func (s *RecordStore) GetObligation(key solana.PublicKey) (*state.Obligation, error) {
	data, err := s.load(KindObligation, key)
	if err != nil || data == nil {
		return nil, err
	}
	return state.DecodeObligation(data)
}

func (s *RecordStore) PutObligation(key solana.PublicKey, obligation *state.Obligation) error {
	if obligation == nil {
		return fmt.Errorf("storage: nil obligation")
	}
	return s.store(KindObligation, key, obligation)
}

// Digest returns the BLAKE3 hash of the stored bytes of a record. A missing
// record yields ErrNotFound.
func (s *RecordStore) Digest(kind RecordKind, key solana.PublicKey) ([32]byte, error) {
	if _, ok := kindPrefixes[kind]; !ok {
		return [32]byte{}, fmt.Errorf("storage: unknown record kind %d", uint8(kind))
	}
	data, err := s.load(kind, key)
	if err != nil {
		return [32]byte{}, err
	}
	if data == nil {
		return [32]byte{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind, key)
	}
	return blake3.Sum256(data), nil
}
