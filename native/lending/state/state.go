// Package state defines the persisted lending records and their fixed-length
// binary layout.
package state

import (
	"errors"

	"lendingcore/native/lending/wad"
)

const (
	// ProgramVersion is the record version written by this module. Decoding
	// accepts any version up to and including it.
	ProgramVersion uint8 = 1
	// UninitializedVersion marks a zeroed record.
	UninitializedVersion uint8 = 0

	// LiquidationCloseFactor is the percentage of a borrow that one
	// liquidation may repay.
	LiquidationCloseFactor uint8 = 50
	// LiquidationCloseAmount is the borrow size, in liquidity tokens, below
	// which a position is closed out in full.
	LiquidationCloseAmount uint64 = 2
	// InitialCollateralRatio is the collateral:liquidity ratio of an empty
	// reserve.
	InitialCollateralRatio uint64 = 1
	// DefaultSlotsPerYear is the slot rate assumed by the interest model.
	DefaultSlotsPerYear uint64 = 78_840_000

	// HostFeeReceiverCount is the capacity of the host fee receiver slab.
	HostFeeReceiverCount = 5
	// MaxObligationReserves bounds deposits plus borrows of one obligation.
	MaxObligationReserves = 10
)

// Pause actions understood by ReserveConfig.IsPaused.
const (
	ActionDeposit     = "deposit"
	ActionBorrow      = "borrow"
	ActionLiquidation = "liquidation"
)

var (
	ErrDecode                = errors.New("state: malformed record")
	ErrVersionMismatch       = errors.New("state: record version newer than supported")
	ErrInvalidConfig         = errors.New("state: invalid reserve config")
	ErrDuplicateReserveEntry = errors.New("state: reserve already present in obligation")
	ErrCapacityExceeded      = errors.New("state: obligation reserve capacity exceeded")
	ErrInsufficientLiquidity = errors.New("state: insufficient reserve liquidity")
)

// LastUpdate tracks the slot a record was last refreshed at.
type LastUpdate struct {
	Slot  uint64
	Stale bool
}

// NewLastUpdate returns a stale marker at slot.
func NewLastUpdate(slot uint64) LastUpdate {
	return LastUpdate{Slot: slot, Stale: true}
}

// SlotsElapsed returns the slots since the last update. A slot behind the
// recorded one is an overflow.
func (u LastUpdate) SlotsElapsed(slot uint64) (uint64, error) {
	if slot < u.Slot {
		return 0, wad.ErrMathOverflow
	}
	return slot - u.Slot, nil
}

// Update records a fresh refresh at slot.
func (u *LastUpdate) Update(slot uint64) {
	u.Slot = slot
	u.Stale = false
}

// MarkStale forces the next consumer to refresh.
func (u *LastUpdate) MarkStale() { u.Stale = true }

// IsStale reports whether the record needs a refresh before use at slot.
func (u LastUpdate) IsStale(slot uint64) bool {
	return u.Stale || u.Slot != slot
}
