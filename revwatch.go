// Package revwatch mirrors on-chain signature revocations for one watched
// lock into a local cache, so revocation checks never leave the process.
package revwatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mrazakos/revwatch/internal/archive"
	"github.com/mrazakos/revwatch/internal/chain"
	"github.com/mrazakos/revwatch/internal/config"
	"github.com/mrazakos/revwatch/internal/dedup"
	"github.com/mrazakos/revwatch/internal/engine"
	"github.com/mrazakos/revwatch/internal/store"
	"github.com/mrazakos/revwatch/internal/verify"
	"github.com/mrazakos/revwatch/server"
)

// Service wires the sync engine, stores, verification facade and the
// operational HTTP surface into one runnable unit.
type Service struct {
	cfg       *config.Config
	logger    Logger
	db        *store.DB
	reader    chain.Reader
	clock     func() time.Time
	engineCfg engine.Config
	engine    *engine.Engine
	verifier  *verify.Service
	archiver  *archive.Archiver
	server    *server.Server
}

// New builds a Service from configuration. The chain connection is
// established lazily in Run unless a reader was injected.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		logger: o.logger,
		db:     db,
		reader: o.reader,
		clock:  o.clock,
	}

	engineCfg := engine.Config{
		Network:         cfg.Network,
		ContractAddress: cfg.ContractAddress,
		LockID:          cfg.LockID,
		StartBlock:      cfg.StartBlock,
		ScanInterval:    cfg.ScanInterval(),
		BatchSize:       cfg.BatchSize,
		MaxRange:        cfg.MaxRange,
		DedupTTL:        dedup.DefaultTTL,
	}

	s.verifier = verify.New(db.Revocations(), db.AuditLog(), o.verifyFunc, o.logger)

	if cfg.ArchiveAfterDays > 0 {
		s.archiver = archive.New(db.AuditLog(), cfg.ArchiveDir, o.logger)
	}

	s.engineCfg = engineCfg

	return s, nil
}

// Run connects, starts the engine and serves the operational API until ctx
// is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.reader == nil {
		if !s.cfg.IsWebsocketRPC() {
			s.logger.Printf("[revwatch] %s is a poll-only transport: push latency guarantees do not apply", s.cfg.RPCURL)
		}
		reader, err := chain.Dial(ctx, s.cfg.RPCURL, s.cfg.ContractAddress, s.cfg.LockID,
			chain.WithLogger(s.logger), chain.WithMaxRange(s.cfg.MaxRange))
		if err != nil {
			return err
		}
		s.reader = reader
	}

	engineOpts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithOnApplied(func(fact store.RevocationFact) {
			if s.server != nil {
				s.server.BroadcastFact(fact)
			}
		}),
	}
	if s.clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(s.clock))
	}

	s.engine = engine.New(s.reader, s.db.Revocations(), s.db.SyncState(), s.engineCfg, engineOpts...)

	s.server = server.New(s.engine, s.verifier, s.db, &server.Config{
		Addr:            s.cfg.ListenAddr,
		EnableWebSocket: true,
		Version:         Version,
	}, s.logger)

	if err := s.engine.Start(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	s.logger.Printf("[revwatch] serving on %s", s.cfg.ListenAddr)

	archiveDone := make(chan struct{})
	if s.archiver != nil {
		go s.runArchiveLoop(ctx, archiveDone)
	} else {
		close(archiveDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Printf("[revwatch] server shutdown: %v", err)
	}

	s.engine.Stop()
	<-archiveDone

	return runErr
}

// runArchiveLoop rotates aged audit entries twice a day
func (s *Service) runArchiveLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.archiver.Rotate(ctx, s.cfg.ArchiveAfter()); err != nil {
				s.logger.Printf("[revwatch] audit archival failed: %v", err)
			}
		}
	}
}

// Engine returns the sync engine (nil before Run)
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Verifier returns the verification facade
func (s *Service) Verifier() *verify.Service {
	return s.verifier
}

// Close releases the database and chain connection
func (s *Service) Close() error {
	if s.engine != nil {
		s.engine.Stop()
	} else if s.reader != nil {
		s.reader.Close()
	}
	return s.db.Close()
}
