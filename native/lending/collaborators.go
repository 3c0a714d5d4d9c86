package lending

import (
	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/wad"
)

// TokenProgram moves and mints SPL-style tokens on behalf of the engine.
// Accounts are addressed by key; authority is the signer the program checks.
type TokenProgram interface {
	Transfer(source, destination, authority solana.PublicKey, amount uint64) error
	MintTo(mint, destination, authority solana.PublicKey, amount uint64) error
	Burn(mint, source, authority solana.PublicKey, amount uint64) error
	Balance(account solana.PublicKey) (uint64, error)
}

// PriceOracle returns the quote-currency price of one whole token for the
// given oracle account.
type PriceOracle interface {
	CurrentOraclePrice(account solana.PublicKey) (wad.Decimal, error)
}

// Clock exposes the current slot.
type Clock interface {
	CurrentSlot() uint64
}

// SignerVerifier reports whether an account signed the enclosing call.
type SignerVerifier interface {
	VerifySigner(account solana.PublicKey) bool
}

// FlashLoanReceiver is invoked with borrowed liquidity already in its
// destination account. It must return amount+fee to the reserve supply
// before returning.
type FlashLoanReceiver interface {
	ReceiveFlashLoan(amount, fee uint64, data []byte) error
}

// FlashLoanReceiverFunc adapts a function to FlashLoanReceiver.
type FlashLoanReceiverFunc func(amount, fee uint64, data []byte) error

// ReceiveFlashLoan calls f.
func (f FlashLoanReceiverFunc) ReceiveFlashLoan(amount, fee uint64, data []byte) error {
	return f(amount, fee, data)
}
