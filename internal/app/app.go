// Package app assembles the storage, ingestion, registry and workflow
// components from a loaded configuration. The server and the CLI share it so
// both operate on the same managed directory and manifest.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/homework-lens/backend/internal/config"
	"github.com/homework-lens/backend/internal/ingest"
	"github.com/homework-lens/backend/internal/storage"
	"github.com/homework-lens/backend/internal/upload"
	"github.com/homework-lens/backend/internal/workflow"
)

// App holds the wired components.
type App struct {
	Config   *config.AppConfig
	Store    *storage.LocalStore
	Engine   *ingest.Engine
	Registry *upload.Manager
	Workflow *workflow.Client
	Logger   *slog.Logger
}

// Option adjusts how New wires components.
type Option func(*options)

type options struct {
	trustedCaller bool
}

// WithTrustedCaller lets any local path or remote URL be cached, ignoring the
// storage source settings. For callers running with the user's own
// permissions, such as the CLI.
func WithTrustedCaller() Option {
	return func(o *options) {
		o.trustedCaller = true
	}
}

// New builds every component and restores the registry from the manifest
// when persistence is enabled.
func New(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	fetchClient := &http.Client{Timeout: time.Duration(cfg.Processing.FetchTimeoutSeconds) * time.Second}
	openers := ingest.DefaultOpeners(fetchClient)
	engineOpts := []ingest.EngineOption{ingest.WithUnrestrictedLocalSources()}
	if !o.trustedCaller {
		engineOpts = []ingest.EngineOption{ingest.WithAllowedRoots(cfg.Storage.AllowedSourceRoots...)}
		if !cfg.Storage.AllowRemoteSources {
			delete(openers, "http")
			delete(openers, "https")
		}
	}
	engine := ingest.NewEngine(store, openers, logger, engineOpts...)

	policy, err := parsePolicy(cfg.Processing.BatchPolicy)
	if err != nil {
		return nil, err
	}
	regOpts := upload.Options{
		Policy:        policy,
		MaxConcurrent: cfg.Processing.MaxConcurrentCaches,
		Logger:        logger,
	}
	if cfg.Storage.EnablePersistence && cfg.Storage.ManifestFile != "" {
		regOpts.Manifest = upload.NewManifest(cfg.Storage.ManifestFile)
	}
	registry := upload.NewManager(engine, store, regOpts)
	if err := registry.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restoring registry: %w", err)
	}

	return &App{
		Config:   cfg,
		Store:    store,
		Engine:   engine,
		Registry: registry,
		Workflow: workflow.NewClient(cfg.Workflow, nil, logger),
		Logger:   logger,
	}, nil
}

func parsePolicy(name string) (upload.BatchPolicy, error) {
	switch upload.BatchPolicy(name) {
	case "", upload.BatchAllOrNothing:
		return upload.BatchAllOrNothing, nil
	case upload.BatchPartial:
		return upload.BatchPartial, nil
	default:
		return "", fmt.Errorf("unknown batch policy %q", name)
	}
}
