package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/staffdraft/go/internal/auth"
	"github.com/mcdev12/staffdraft/go/internal/catalog"
	"github.com/mcdev12/staffdraft/go/internal/draft/engine"
	"github.com/mcdev12/staffdraft/go/internal/draft/gateway"
	"github.com/mcdev12/staffdraft/go/internal/draft/outbox"
	"github.com/mcdev12/staffdraft/go/internal/metrics"
)

type Services struct {
	Engine  *engine.Engine
	Gateway *gateway.Service
	Outbox  *outbox.Worker
	Metrics *metrics.PrometheusCollector

	closers []func() error
}

// Close releases database handles, the spool and broker connections.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func setupServices(ctx context.Context, cfg Config) (_ *Services, err error) {
	// Wire up dependency injection chain
	// Catalog → Outbox → Engine → Gateway
	s := &Services{Metrics: metrics.NewPrometheus(nil, "")}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	source, directory, err := s.setupCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	verifier, err := setupVerifier(cfg)
	if err != nil {
		return nil, err
	}

	store, err := s.setupStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := s.setupPublishers(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s.Outbox = outbox.NewWorker(store, publisher, cfg.outboxConfig(), outbox.WithMetrics(s.Metrics))

	gwConfig := gateway.DefaultConfig()
	gwConfig.AdminKey = cfg.AdminKey
	cm := gateway.NewConnectionManager(gwConfig.ConnectionConfig, s.Metrics)

	s.Engine = engine.New(cfg.engineConfig(), engine.Dependencies{
		Verifier:  verifier,
		Directory: directory,
		Source:    source,
		Notifier:  cm,
		Sink:      s.Outbox,
		Flusher:   s.Outbox,
		Metrics:   s.Metrics,
		Alive:     cm.IsConnected,
	})
	s.Gateway = gateway.NewService(gwConfig, cm, s.Engine)

	return s, nil
}

func (s *Services) setupCatalog(ctx context.Context, cfg Config) (catalog.Source, catalog.Directory, error) {
	switch cfg.CatalogSource {
	case catalogSourcePostgres:
		database, err := setupDatabase(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, database.Close)
		src := catalog.NewPostgresSource(database)
		return src, src, nil
	default:
		src := catalog.NewYAMLSource(cfg.CatalogFile)
		snap, err := src.Load(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load catalog: %w", err)
		}
		log.Info().
			Str("file", cfg.CatalogFile).
			Int("consultants", len(snap.Consultants())).
			Msg("catalog loaded")
		return src, src, nil
	}
}

func setupVerifier(cfg Config) (auth.Verifier, error) {
	var verifiers []auth.Verifier
	if cfg.JoinCode != "" {
		verifiers = append(verifiers, auth.NewJoinCodeVerifier(cfg.JoinCode))
	}
	if cfg.TokenSecret != "" {
		verifiers = append(verifiers, auth.NewTokenVerifier(cfg.TokenSecret, cfg.TokenIssuer))
	}
	if len(verifiers) == 0 {
		return nil, errors.New("one of DRAFT_JOIN_CODE or DRAFT_TOKEN_SECRET is required")
	}
	return auth.Any(verifiers...), nil
}

func (s *Services) setupStore(ctx context.Context, cfg Config) (outbox.Store, error) {
	if cfg.OutboxSpoolPath == "" {
		return outbox.NewMemoryStore(cfg.OutboxCapacity), nil
	}
	store, err := outbox.OpenSQLiteStore(ctx, cfg.OutboxSpoolPath, cfg.OutboxCapacity)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, store.Close)
	log.Info().Str("path", cfg.OutboxSpoolPath).Msg("outbox spool opened")
	return store, nil
}

func (s *Services) setupPublishers(ctx context.Context, cfg Config) (outbox.EventPublisher, error) {
	publishers := []outbox.EventPublisher{outbox.NewLogPublisher(log.Logger)}

	if cfg.NATSURL != "" {
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		js, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, js.Close)
		publishers = append(publishers, js)
	}

	if cfg.HistoryDBEnabled {
		pool, err := setupPool(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error {
			pool.Close()
			return nil
		})
		publishers = append(publishers, outbox.NewHistoryPublisher(pool))
	}

	if cfg.WebhookURL != "" {
		publishers = append(publishers, outbox.NewWebhookPublisher(cfg.WebhookURL, nil))
	}

	log.Info().Int("sinks", len(publishers)).Msg("outbox publishers configured")
	if len(publishers) == 1 {
		return publishers[0], nil
	}
	return outbox.NewMultiPublisher(publishers...), nil
}
