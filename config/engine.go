package config

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending"
	"lendingcore/observability/logging"
)

// EngineOptions converts the configuration into engine options.
func (cfg Config) EngineOptions() (lending.Options, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return lending.Options{}, fmt.Errorf("program_id: %w", err)
	}
	return lending.Options{ProgramID: programID, SlotsPerYear: cfg.SlotsPerYear}, nil
}

// QuoteCurrencyBytes returns the quote currency NUL padded to 32 bytes.
func (cfg Config) QuoteCurrencyBytes() [32]byte {
	var out [32]byte
	copy(out[:], cfg.QuoteCurrency)
	return out
}

// Options returns the logging options for Setup.
func (cfg LoggingConfig) Options() []logging.Option {
	opts := []logging.Option{logging.WithLevel(logging.ParseLevel(cfg.Level))}
	if cfg.File != "" {
		opts = append(opts, logging.WithFile(cfg.File))
	}
	return opts
}
