// Package app wires the session, realtime and notification subsystems
// together and owns their lifecycle.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opencampus/examdesk/internal/cache"
	"github.com/opencampus/examdesk/internal/notify"
	"github.com/opencampus/examdesk/internal/realtime"
	"github.com/opencampus/examdesk/internal/session"
	"github.com/opencampus/examdesk/internal/store"
	"github.com/opencampus/examdesk/pkg/examapi"
	"github.com/opencampus/examdesk/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the examdesk runtime with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	api     *examapi.Client
	store   *store.Store
	cache   *cache.Cache
	session *session.Manager
	router  *notify.Router
	channel *realtime.Manager
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "examdesk",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	app.api = examapi.NewClient(cfg.APIBaseURL)

	st, err := store.Open(cfg.StatePath(), store.Options{
		EncryptedKeys: []string{session.CredentialKey},
		KeyFile:       cfg.KeyPath(),
		Logger:        app.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	app.store = st

	app.session = session.NewManager(app.api, st, session.Options{
		CheckInterval:    cfg.CheckInterval,
		RefreshThreshold: cfg.RefreshThreshold,
		Logger:           app.logger,
	})

	// Authenticated API calls pick up the live token through the
	// session manager, refresh included.
	app.api.Token = app.session.AccessToken

	c, err := cache.Open(app.cacheDSN(), app.api, cache.Options{Logger: app.logger})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to open notification cache: %w", err)
	}
	app.cache = c

	app.router = notify.NewRouter(st, c, notify.Options{
		PollInterval: cfg.PollInterval,
		ToastTTL:     cfg.ToastTTL,
		Logger:       app.logger,
	})

	app.channel = realtime.NewManager(app.session, app.router, realtime.Options{
		URL:               app.eventsURL(),
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectDelay:    cfg.ReconnectDelay,
		Logger:            app.logger,
	})

	return app, nil
}

// Session exposes the token lifecycle manager to callers embedding the
// runtime.
func (app *Application) Session() *session.Manager { return app.session }

// Notifications exposes the notification router.
func (app *Application) Notifications() *notify.Router { return app.router }

// Cache exposes the local notification mirror.
func (app *Application) Cache() *cache.Cache { return app.cache }

// Channel exposes the realtime channel manager.
func (app *Application) Channel() *realtime.Manager { return app.channel }

// Run starts the background subsystems and blocks until shutdown is
// requested.
func (app *Application) Run() error {
	app.session.Start()
	app.router.Start()
	app.channel.Start()

	app.logger.Info("examdesk starting",
		"version", BuildVersion,
		"api", app.cfg.APIBaseURL,
		"events", app.eventsURL(),
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops the subsystems in reverse dependency order.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down examdesk...")

	app.channel.Close()
	app.router.Close()
	app.session.Close()

	if err := app.cache.Close(); err != nil {
		app.logger.Error("error closing notification cache", "error", err)
	}
	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing state store", "error", err)
		return err
	}

	app.logger.Info("examdesk stopped")
	return nil
}

// eventsURL derives the websocket endpoint from the API base URL unless
// one was configured explicitly.
func (app *Application) eventsURL() string {
	if app.cfg.EventsURL != "" {
		return app.cfg.EventsURL
	}

	base := app.cfg.APIBaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimSuffix(base, "/") + "/v1/events"
}

func (app *Application) cacheDSN() string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.CachePath())
}
