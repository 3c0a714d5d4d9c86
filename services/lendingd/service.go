// Package lendingd assembles a lending engine from configuration: structured
// logging, the record database and the engine itself.
package lendingd

import (
	"errors"
	"fmt"
	"log/slog"

	"lendingcore/config"
	"lendingcore/native/lending"
	"lendingcore/observability/logging"
	"lendingcore/storage"
)

// Collaborators are the host services the engine calls into. All four are
// required.
type Collaborators struct {
	Tokens  lending.TokenProgram
	Oracle  lending.PriceOracle
	Clock   lending.Clock
	Signers lending.SignerVerifier
}

func (c Collaborators) validate() error {
	switch {
	case c.Tokens == nil:
		return errors.New("token program required")
	case c.Oracle == nil:
		return errors.New("price oracle required")
	case c.Clock == nil:
		return errors.New("clock required")
	case c.Signers == nil:
		return errors.New("signer verifier required")
	}
	return nil
}

// Service owns the database handle backing an engine.
type Service struct {
	cfg    config.Config
	logger *slog.Logger
	db     storage.Database
	store  *storage.RecordStore
	engine *lending.Engine
}

// New opens the configured database and returns a ready engine.
func New(cfg config.Config, collaborators Collaborators) (*Service, error) {
	if err := collaborators.validate(); err != nil {
		return nil, fmt.Errorf("lendingd: %w", err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, fmt.Errorf("lendingd: %w", err)
	}
	logger := logging.Setup(cfg.Logging.Service, cfg.Logging.Env, cfg.Logging.Options()...)

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("lendingd: %w", err)
	}
	store := storage.NewRecordStore(db)

	engine := lending.NewEngine(opts)
	engine.SetState(store)
	engine.SetTokenProgram(collaborators.Tokens)
	engine.SetOracle(collaborators.Oracle)
	engine.SetClock(collaborators.Clock)
	engine.SetSigners(collaborators.Signers)
	engine.SetLogger(logger)

	logger.Info("lending: engine ready",
		"program", opts.ProgramID.String(),
		"storage", cfg.Storage.Backend,
		"slots_per_year", opts.SlotsPerYear)
	return &Service{cfg: cfg, logger: logger, db: db, store: store, engine: engine}, nil
}

func (s *Service) Engine() *lending.Engine { return s.engine }

func (s *Service) Records() *storage.RecordStore { return s.store }

// QuoteCurrency is the configured quote currency in record form.
func (s *Service) QuoteCurrency() [32]byte { return s.cfg.QuoteCurrencyBytes() }

// Close releases the database.
func (s *Service) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
	s.logger.Info("lending: storage closed")
}
