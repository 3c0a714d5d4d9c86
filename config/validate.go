package config

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/state"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"

	defaultService = "lending"
)

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ProgramID = strings.TrimSpace(cfg.ProgramID)
	cfg.QuoteCurrency = strings.TrimSpace(cfg.QuoteCurrency)
	if cfg.SlotsPerYear == 0 {
		cfg.SlotsPerYear = state.DefaultSlotsPerYear
	}
	cfg.Logging.normalize()
	cfg.Storage.normalize()
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.ProgramID == "" {
		return fmt.Errorf("program_id required")
	}
	key, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("program_id: %w", err)
	}
	if key == (solana.PublicKey{}) {
		return fmt.Errorf("program_id must not be the zero key")
	}
	if len(cfg.QuoteCurrency) > 32 {
		return fmt.Errorf("quote_currency: %d bytes exceeds 32", len(cfg.QuoteCurrency))
	}
	for i := 0; i < len(cfg.QuoteCurrency); i++ {
		if cfg.QuoteCurrency[i] > 0x7f {
			return fmt.Errorf("quote_currency: non-ASCII byte at offset %d", i)
		}
	}
	if err := cfg.Logging.validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := cfg.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

func (cfg *LoggingConfig) normalize() {
	cfg.Service = strings.TrimSpace(cfg.Service)
	if cfg.Service == "" {
		cfg.Service = defaultService
	}
	cfg.Env = strings.TrimSpace(cfg.Env)
	cfg.Level = strings.ToLower(strings.TrimSpace(cfg.Level))
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.File = strings.TrimSpace(cfg.File)
}

func (cfg LoggingConfig) validate() error {
	switch cfg.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown level %q", cfg.Level)
	}
}

func (cfg *StorageConfig) normalize() {
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	cfg.Path = strings.TrimSpace(cfg.Path)
}

func (cfg StorageConfig) validate() error {
	switch cfg.Backend {
	case BackendMemory:
		return nil
	case BackendLevelDB, BackendBolt:
		if cfg.Path == "" {
			return fmt.Errorf("path required for %s backend", cfg.Backend)
		}
		return nil
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
