package lending

import (
	"errors"

	nativecommon "lendingcore/native/common"
	"lendingcore/native/lending/state"
	"lendingcore/native/lending/wad"
)

// Errors owned by the leaf packages, re-exported so callers compare against a
// single taxonomy.
var (
	ErrDecode                = state.ErrDecode
	ErrVersionMismatch       = state.ErrVersionMismatch
	ErrMathOverflow          = wad.ErrMathOverflow
	ErrInvalidConfig         = state.ErrInvalidConfig
	ErrDuplicateReserveEntry = state.ErrDuplicateReserveEntry
	ErrCapacityExceeded      = state.ErrCapacityExceeded
	ErrInsufficientLiquidity = state.ErrInsufficientLiquidity
	ErrOperationPaused       = nativecommon.ErrOperationPaused
)

var (
	ErrNegativeInterestRate   = errors.New("lending engine: cumulative borrow rate decreased")
	ErrReserveStale           = errors.New("lending engine: reserve is stale and must be refreshed")
	ErrObligationStale        = errors.New("lending engine: obligation is stale and must be refreshed")
	ErrObligationHealthy      = errors.New("lending engine: obligation is healthy and cannot be liquidated")
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral for borrow")
	ErrWithdrawTooLarge       = errors.New("lending engine: withdraw amount too large")
	ErrReentrancyDetected     = errors.New("lending engine: reserve re-entered during operation")

	ErrInvalidSigner       = errors.New("lending engine: missing or invalid signer")
	ErrInvalidAmount       = errors.New("lending engine: amount must be positive")
	ErrNotInitialized      = errors.New("lending engine: account not initialised")
	ErrAlreadyInitialized  = errors.New("lending engine: account already initialised")
	ErrInvalidAccount      = errors.New("lending engine: account does not belong to market")
	ErrFlashLoanNotRepaid  = errors.New("lending engine: flash loan not repaid")
	ErrTransferFailed      = errors.New("lending engine: token transfer failed")
	ErrDepositLimit        = errors.New("lending engine: reserve deposit limit exceeded")
	ErrLiquidationTooSmall = errors.New("lending engine: liquidation amount too small")
	errNilState            = errors.New("lending engine: state not configured")
	errMissingCollaborator = errors.New("lending engine: token program, clock or signer verifier not configured")
)
