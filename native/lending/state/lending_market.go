package state

import (
	"github.com/gagliardetto/solana-go"
)

// LendingMarketLen is the persisted size of a LendingMarket.
const LendingMarketLen = 418

const lendingMarketPadding = 86

// LendingMarket is the shared configuration of one market.
type LendingMarket struct {
	Version  uint8
	BumpSeed uint8
	// PendingOwner is set by an owner hand-over and cleared once accepted.
	PendingOwner solana.PublicKey
	Owner        solana.PublicKey
	// QuoteCurrency is a NUL padded ticker such as "USD" or a mint key.
	QuoteCurrency        [32]byte
	TokenProgramID       solana.PublicKey
	OracleProgramID      solana.PublicKey
	LarixOracleProgramID solana.PublicKey
	LarixOracleID        solana.PublicKey
	MineMint             solana.PublicKey
	MineSupplyAccount    solana.PublicKey
	MineLockProgram      solana.PublicKey
	// LockLarixTimesToTime converts claimed subsidy multiples to a lock time.
	LockLarixTimesToTime uint64
	// MaxClaimTimes is a percentage; 200 allows claiming twice.
	MaxClaimTimes uint16
}

// InitLendingMarketParams carries the fields fixed at market creation.
type InitLendingMarketParams struct {
	BumpSeed             uint8
	Owner                solana.PublicKey
	QuoteCurrency        [32]byte
	TokenProgramID       solana.PublicKey
	OracleProgramID      solana.PublicKey
	LarixOracleProgramID solana.PublicKey
	LarixOracleID        solana.PublicKey
	MineMint             solana.PublicKey
	MineSupplyAccount    solana.PublicKey
	MineLockProgram      solana.PublicKey
}

// NewLendingMarket builds an initialised market.
func NewLendingMarket(params InitLendingMarketParams) *LendingMarket {
	return &LendingMarket{
		Version:              ProgramVersion,
		BumpSeed:             params.BumpSeed,
		Owner:                params.Owner,
		QuoteCurrency:        params.QuoteCurrency,
		TokenProgramID:       params.TokenProgramID,
		OracleProgramID:      params.OracleProgramID,
		LarixOracleProgramID: params.LarixOracleProgramID,
		LarixOracleID:        params.LarixOracleID,
		MineMint:             params.MineMint,
		MineSupplyAccount:    params.MineSupplyAccount,
		MineLockProgram:      params.MineLockProgram,
	}
}

// IsInitialized reports whether the record has been created.
func (m *LendingMarket) IsInitialized() bool {
	return m != nil && m.Version != UninitializedVersion
}

// Clone returns a copy of the market.
func (m *LendingMarket) Clone() *LendingMarket {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// MarshalBinary encodes the market into its 418 byte layout.
func (m *LendingMarket) MarshalBinary() ([]byte, error) {
	w := newRecordWriter(LendingMarketLen)
	w.u8(m.Version)
	w.u8(m.BumpSeed)
	w.pubkey(m.PendingOwner)
	w.pubkey(m.Owner)
	w.raw(m.QuoteCurrency[:])
	w.pubkey(m.TokenProgramID)
	w.pubkey(m.OracleProgramID)
	w.pubkey(m.LarixOracleProgramID)
	w.pubkey(m.LarixOracleID)
	w.pubkey(m.MineMint)
	w.pubkey(m.MineSupplyAccount)
	w.pubkey(m.MineLockProgram)
	w.u64(m.LockLarixTimesToTime)
	w.u16(m.MaxClaimTimes)
	w.zeros(lendingMarketPadding)
	return w.finish("lending market", LendingMarketLen)
}

// UnmarshalBinary decodes a 418 byte market record.
func (m *LendingMarket) UnmarshalBinary(data []byte) error {
	r, err := newRecordReader("lending market", data, LendingMarketLen)
	if err != nil {
		return err
	}
	var out LendingMarket
	out.Version = r.version()
	out.BumpSeed = r.u8("bump_seed")
	out.PendingOwner = r.pubkey("pending_owner")
	out.Owner = r.pubkey("owner")
	copy(out.QuoteCurrency[:], r.raw("quote_currency", 32))
	out.TokenProgramID = r.pubkey("token_program_id")
	out.OracleProgramID = r.pubkey("oracle_program_id")
	out.LarixOracleProgramID = r.pubkey("larix_oracle_program_id")
	out.LarixOracleID = r.pubkey("larix_oracle_id")
	out.MineMint = r.pubkey("mine_mint")
	out.MineSupplyAccount = r.pubkey("mine_supply_account")
	out.MineLockProgram = r.pubkey("mine_lock_program")
	out.LockLarixTimesToTime = r.u64("lock_larix_times_to_time")
	out.MaxClaimTimes = r.u16("max_claim_times")
	r.skip("padding", lendingMarketPadding)
	if err := r.done(); err != nil {
		return err
	}
	*m = out
	return nil
}

// DecodeLendingMarket is a convenience wrapper around UnmarshalBinary.
func DecodeLendingMarket(data []byte) (*LendingMarket, error) {
	m := new(LendingMarket)
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}
