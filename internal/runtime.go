package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/GraysonCAdams/dex-contacts/internal/contacts"
	"github.com/GraysonCAdams/dex-contacts/internal/dex"
	"github.com/GraysonCAdams/dex-contacts/internal/index"
	"github.com/GraysonCAdams/dex-contacts/internal/memo"
	"github.com/GraysonCAdams/dex-contacts/internal/noteservice"
	"github.com/GraysonCAdams/dex-contacts/internal/sse"
	"github.com/GraysonCAdams/dex-contacts/internal/storage"
)

// statusThrottle bounds how often status.changed events reach SSE clients.
const statusThrottle = 2 * time.Second

// Runtime holds the components shared by every command.
type Runtime struct {
	Config   *Config
	Logger   *slog.Logger
	Store    *storage.FS
	DB       *index.DB
	Contacts *contacts.Cache
	Broker   *sse.Broker
	Service  *noteservice.Service

	version string
}

// Setup wires storage, the index, the Dex client, the contact cache and the
// memo syncer from the configuration. Callers must Close the runtime.
func Setup(opts ...Option) (*Runtime, error) {
	app := &application{logOut: os.Stdout, version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("dex_base_url", cfg.Dex.BaseURL),
		slog.String("link_style", cfg.Dex.LinkStyle),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Vault.Path, storage.WithIgnore(cfg.Vault.Ignore...))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	client := dex.NewClient(cfg.Dex.APIKey,
		dex.WithBaseURL(cfg.Dex.BaseURL),
		dex.WithProfileURL(cfg.Dex.ProfileURL),
	)

	cache := contacts.New(client,
		contacts.WithTTL(cfg.Cache.TTL),
		contacts.WithPageSize(cfg.Cache.PageSize),
		contacts.WithPersister(db),
		contacts.WithLogger(logger),
	)
	if err := cache.Warm(); err != nil {
		logger.Warn("contact cache warm-up failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(statusThrottle)

	vaultName := cfg.Vault.Name
	if vaultName == "" {
		vaultName = store.Name()
	}

	syncer := memo.NewSyncer(client,
		memo.WithTemplate(memo.Template{Text: cfg.Memo.Template}),
		memo.WithVault(vaultName),
		memo.WithLogger(logger),
		memo.WithNotifier(broker),
	)

	links := noteservice.Links{
		URLBase: cfg.Dex.ProfileURL,
		Folder:  cfg.Dex.ContactFolder,
		Style:   cfg.Dex.LinkStyle,
	}

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		DB:       db,
		Contacts: cache,
		Broker:   broker,
		Service:  noteservice.NewService(store, db, cache, syncer, links, logger),
		version:  app.version,
	}, nil
}

// Close stops the event broker and closes the index.
func (r *Runtime) Close() error {
	r.Broker.Close()
	return r.DB.Close()
}
