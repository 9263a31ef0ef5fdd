package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"practicum/internal/api"
	"practicum/internal/catalog"
	"practicum/internal/channel"
	"practicum/internal/comments"
	"practicum/internal/config"
	"practicum/internal/profile"
	"practicum/internal/session"
	"practicum/internal/storage"
	"practicum/internal/taskview"
	"practicum/pkg/interfaces"
)

// Application coordinates all client components.
// Initialization order: Store → REST client → Session → Live channel;
// shutdown runs in reverse.
type Application struct {
	config  *config.Config
	logger  *slog.Logger
	store   interfaces.KeyValueStore
	client  *api.Client
	session *session.Manager
	channel *channel.Service
	authors *comments.Authors
}

// NewApplication builds every component without touching the network.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: local key-value store holding the session
	var store interfaces.KeyValueStore
	if cfg.Storage.Ephemeral {
		store = storage.NewMemoryStore()
	} else {
		storeCfg := storage.DefaultStoreConfig(cfg.Storage.Path)
		storeCfg.Timeout = cfg.Storage.Timeout
		sqlite, err := storage.OpenSQLite(storeCfg, logger.With("component", "storage"))
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		store = sqlite
	}

	// STEP 2: REST client; the token source is attached once the session exists
	client := api.NewClient(api.Options{
		AuthURL: cfg.API.AuthURL,
		MainURL: cfg.API.MainURL,
		Timeout: cfg.API.RequestTimeout,
		Logger:  logger.With("component", "api"),
	})

	// STEP 3: session manager
	mgr := session.NewManager(store, client, logger.With("component", "session"))
	client.SetTokenSource(mgr)

	// STEP 4: live submission channel following the session
	svc := channel.NewService(mgr, channel.Options{
		URL:              cfg.Notifier.URL,
		HandshakeTimeout: cfg.Notifier.HandshakeTimeout,
		ReadTimeout:      cfg.Notifier.ReadTimeout,
		WriteTimeout:     cfg.Notifier.WriteTimeout,
		PingInterval:     cfg.Notifier.PingInterval,
		BufferSize:       cfg.Notifier.BufferSize,
		Backoff: channel.Backoff{
			InitialDelay: cfg.Notifier.ReconnectInitialDelay,
			MaxDelay:     cfg.Notifier.ReconnectMaxDelay,
			Multiplier:   cfg.Notifier.ReconnectMultiplier,
		},
		Logger: logger.With("component", "channel"),
	})

	return &Application{
		config:  cfg,
		logger:  logger,
		store:   store,
		client:  client,
		session: mgr,
		channel: svc,
		authors: comments.NewAuthors(client, logger.With("component", "comments")),
	}, nil
}

// Start begins following the session with the live channel and restores
// the persisted session, which opens the channel when someone is logged in.
func (app *Application) Start(ctx context.Context) error {
	if err := app.channel.Start(); err != nil {
		return fmt.Errorf("failed to start live channel: %w", err)
	}
	if err := app.session.Restore(ctx); err != nil {
		_ = app.channel.Close(ctx)
		return fmt.Errorf("failed to restore session: %w", err)
	}
	app.logger.Debug("application started", "authenticated", app.session.IsAuthenticated())
	return nil
}

// Stop closes the live channel and then the store.
func (app *Application) Stop(ctx context.Context) error {
	var errs []error
	if err := app.channel.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("live channel shutdown: %w", err))
	}
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store shutdown: %w", err))
	}
	return errors.Join(errs...)
}

func (app *Application) Config() *config.Config { return app.config }
func (app *Application) Client() *api.Client { return app.client }
func (app *Application) Session() *session.Manager { return app.session }
func (app *Application) Channel() *channel.Service { return app.channel }
func (app *Application) Store() interfaces.KeyValueStore { return app.store }

// NewCatalog returns the task list view-model.
func (app *Application) NewCatalog() *catalog.Catalog {
	return catalog.New(app.client, app.session, app.logger.With("component", "catalog"))
}

// NewTaskView returns a task detail view-model bound to the live channel.
func (app *Application) NewTaskView() *taskview.View {
	return taskview.New(app.client, app.session, app.channel, app.logger.With("component", "taskview"))
}

// NewThread returns the comment thread of a task or theory item; author
// names are cached across threads.
func (app *Application) NewThread(target api.Target, itemID int64) *comments.Thread {
	return comments.NewThread(app.client, app.session, app.authors, target, itemID, app.logger.With("component", "comments"))
}

func (app *Application) NewProfile() *profile.Page {
	return profile.New(app.client, app.session, app.logger.With("component", "profile"))
}
