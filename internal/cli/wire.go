// Package cli implements the guestsync commands. Each command wires the
// stack it needs from config, the SQLite state directory, and the HTTP
// API client.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stueble/guestsync/internal/config"
	"github.com/stueble/guestsync/internal/core/ports"
	"github.com/stueble/guestsync/internal/infrastructure/db/sqlite"
	"github.com/stueble/guestsync/internal/infrastructure/httpapi"
	"github.com/stueble/guestsync/pkg/logger"
)

// app bundles the pieces every command starts from.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *sqlite.DB
	store    *sqlite.EntityStore
	buffer   *sqlite.ActionBuffer
	settings *sqlite.Settings
	api      *httpapi.Client
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	db, err := sqlite.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewEntityStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	api, err := httpapi.NewClient(cfg.ServerURL, cfg.RequestTimeout, logger.For("httpapi"))
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		store:    store,
		buffer:   sqlite.NewActionBuffer(db),
		settings: sqlite.NewSettings(db),
		api:      api,
	}

	// Restore the stored session so commands start authenticated when a
	// prior login is still valid.
	if token, ok, err := a.settings.Get(ctx, ports.SettingSession); err == nil && ok {
		a.api.SetSession(token)
	}
	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("state database not closed cleanly")
	}
}

// requireSession fails fast when no live login exists.
func (a *app) requireSession() error {
	if !a.api.SessionValid(time.Now()) {
		return fmt.Errorf("no valid session for %s, run `guestsync login` first", a.cfg.ServerURL)
	}
	return nil
}

func (a *app) saveSession(ctx context.Context) error {
	return a.settings.Set(ctx, ports.SettingSession, a.api.Session())
}
