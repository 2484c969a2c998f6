package main

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/theodore/internal/backends"
	"github.com/fyrsmithlabs/theodore/internal/config"
	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/fyrsmithlabs/theodore/internal/embeddings"
	"github.com/fyrsmithlabs/theodore/internal/events"
	"github.com/fyrsmithlabs/theodore/internal/logging"
	"github.com/fyrsmithlabs/theodore/internal/vectorstore"
)

const eventPublishTimeout = 5 * time.Second

// app holds the wired discovery services shared by the serve and mcp
// commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	registry     *discovery.Registry
	monitor      *discovery.HealthMonitor
	orchestrator *discovery.Orchestrator

	store     vectorstore.Store
	companies *backends.VectorDB
	publisher *events.Publisher

	closers []func() error
}

// newApp builds every service cfg enables. Backends without credentials
// are skipped; a NATS or store failure is fatal.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: discovery.NewRegistry(logger),
	}

	if err := a.initStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.registerBackends(); err != nil {
		a.Close()
		return nil, err
	}

	fallback, err := a.fallback()
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.NATS.URL != "" {
		a.publisher, err = events.Connect(cfg.NATS, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.publisher.Close)
		if err := a.registry.OnHealthChange(a.publisher.HealthChangeHandler(eventPublishTimeout)); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.monitor = discovery.NewHealthMonitor(a.registry,
		cfg.Discovery.HealthCheckInterval.Duration(),
		cfg.Discovery.HealthCheckConcurrency,
		logger)

	opts := discovery.Options{
		Timeout: cfg.DiscoveryTimeout(),
		Logger:  logger,
	}
	if a.companies != nil {
		opts.VectorStore = a.companies
	}
	if fallback != nil {
		opts.Fallback = fallback
	}
	if a.publisher != nil {
		opts.Publisher = a.publisher
	}
	executor := discovery.NewExecutor(a.registry, nil, cfg.Discovery.MaxConcurrency, logger)
	a.orchestrator = discovery.NewOrchestrator(executor, opts)

	logger.Info("theodore services ready",
		zap.Strings("backends", a.registry.AvailableTools()),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Bool("fallback", fallback != nil),
		zap.Bool("events", a.publisher != nil))
	return a, nil
}

func (a *app) initStore() error {
	if a.cfg.VectorStore.Provider == "none" {
		return nil
	}
	embedder, err := embeddings.NewService(embeddings.ConfigFrom(a.cfg.Embeddings), a.logger)
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}
	store, err := vectorstore.NewStore(a.cfg, embedder, a.logger)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	a.companies, err = backends.NewVectorDB(store, backends.VectorDBConfig{}, a.logger)
	if err != nil {
		return err
	}
	return nil
}

func (a *app) registerBackends() error {
	cfg := a.cfg

	if cfg.Perplexity.APIKey.IsSet() {
		b, err := backends.NewPerplexity(backends.PerplexityConfig{
			HTTPConfig: backends.HTTPConfig{
				BaseURL:    cfg.Perplexity.BaseURL,
				APIKey:     cfg.Perplexity.APIKey.Value(),
				Timeout:    cfg.Perplexity.Timeout.Duration(),
				RateLimit:  cfg.Perplexity.RateLimit,
				MaxRetries: cfg.Perplexity.MaxRetries,
			},
			Model: cfg.Perplexity.Model,
		}, a.logger)
		if err != nil {
			return err
		}
		if err := a.registry.Register(b); err != nil {
			return err
		}
	}

	if cfg.Tavily.APIKey.IsSet() {
		b, err := backends.NewTavily(backends.HTTPConfig{
			BaseURL:    cfg.Tavily.BaseURL,
			APIKey:     cfg.Tavily.APIKey.Value(),
			Timeout:    cfg.Tavily.Timeout.Duration(),
			RateLimit:  cfg.Tavily.RateLimit,
			MaxRetries: cfg.Tavily.MaxRetries,
		}, a.logger)
		if err != nil {
			return err
		}
		if err := a.registry.Register(b); err != nil {
			return err
		}
	}

	if cfg.SearchDroid.Endpoint != "" {
		b, err := backends.NewSearchDroid(backends.SearchDroidConfig{
			Endpoint:  cfg.SearchDroid.Endpoint,
			Transport: cfg.SearchDroid.Transport,
			Tool:      cfg.SearchDroid.Tool,
			Timeout:   cfg.SearchDroid.Timeout.Duration(),
		}, a.logger)
		if err != nil {
			return err
		}
		if err := a.registry.Register(b); err != nil {
			return err
		}
		a.closers = append(a.closers, b.Close)
	}

	a.logger.Debug("backend credentials",
		logging.Secret("perplexity.api_key", cfg.Perplexity.APIKey),
		logging.Secret("tavily.api_key", cfg.Tavily.APIKey),
		logging.Secret("google.api_key", cfg.Google.APIKey))
	return nil
}

func (a *app) fallback() (*backends.Google, error) {
	if !a.cfg.Google.Enabled() {
		return nil, nil
	}
	return backends.NewGoogle(backends.GoogleConfig{
		HTTPConfig: backends.HTTPConfig{
			BaseURL: a.cfg.Google.BaseURL,
			APIKey:  a.cfg.Google.APIKey.Value(),
			Timeout: a.cfg.Google.Timeout.Duration(),
		},
		SearchEngineID: a.cfg.Google.SearchEngineID,
	}, a.logger)
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() error {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
