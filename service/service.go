// Package service assembles the adapter with its credential store, HTTP
// control surface and local file watcher, and runs them together.
package service

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/picostack/gitadapter/adapter"
	"github.com/picostack/gitadapter/api"
	"github.com/picostack/gitadapter/config"
	"github.com/picostack/gitadapter/notify"
	"github.com/picostack/gitadapter/secret"
	"github.com/picostack/gitadapter/secret/vault"
	"github.com/picostack/gitadapter/source"
	"github.com/picostack/gitadapter/watcher"
)

// TokenKey is the default key of the access token inside the Vault secret.
const TokenKey = "GIT_SERVICE_ACCESS_TOKEN"

// Config specifies static configuration parameters (from CLI or environment)
type Config struct {
	Adapter    adapter.Params
	ListenAddr string
	Directory  string

	VaultAddress string
	VaultToken   string
	VaultPath    string
	VaultSecret  string
	VaultKey     string

	// OnChange receives every changed configuration.
	OnChange func(config.Config)
}

// App stores application state
type App struct {
	config  Config
	adapter *adapter.Adapter
	secrets secret.Store
}

// Initialise resolves credentials and prepares the adapter. The context bounds
// credential resolution and becomes the adapter's loop context.
func Initialise(ctx context.Context, c Config, opts ...adapter.Option) (app *App, err error) {
	app = &App{config: c}

	if c.Adapter.Token == "" && c.VaultAddress != "" && !c.Adapter.Local {
		if app.secrets, err = vault.New(c.VaultAddress, c.VaultPath, c.VaultToken); err != nil {
			return nil, err
		}
		if c.Adapter.Token, err = resolveToken(ctx, app.secrets, c.VaultSecret, c.VaultKey); err != nil {
			return nil, err
		}
		app.config.Adapter.Token = c.Adapter.Token
		zap.L().Debug("resolved access token from vault",
			zap.String("secret", c.VaultSecret))
	}

	opts = append([]adapter.Option{
		adapter.WithContext(ctx),
		adapter.WithNotifier(notify.NewLogger(zap.L())),
	}, opts...)
	if c.Directory != "" {
		opts = append(opts, adapter.WithWorkingDirectory(c.Directory))
	}

	if app.adapter, err = adapter.New(c.Adapter, opts...); err != nil {
		return nil, err
	}
	if c.OnChange != nil {
		app.adapter.Subscribe(c.OnChange)
	}
	return app, nil
}

func resolveToken(ctx context.Context, s secret.Store, name, key string) (token string, err error) {
	if key == "" {
		key = TokenKey
	}
	err = retrier.New(retrier.ConstantBackoff(3, 100*time.Millisecond), nil).
		RunCtx(ctx, func(ctx context.Context) (err error) {
			token, err = secret.Lookup(s, name, key)
			return
		})
	return token, errors.Wrap(err, "failed to resolve access token")
}

// Adapter returns the underlying adapter.
func (app *App) Adapter() *adapter.Adapter {
	return app.adapter
}

// Start verifies the connection, runs the first fetch and then blocks serving
// the control API and the local file watch until ctx is cancelled or one of
// them fails. Neither a failed connection check nor a failed first fetch stops
// it, the poll loop keeps retrying.
func (app *App) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	zap.L().Debug("starting service daemon")

	// a failed check is already reported and leaves the poll loop alone
	if !app.config.Adapter.Local {
		if err := app.adapter.EstablishConnection(ctx); err != nil {
			zap.L().Warn("continuing without a verified connection", zap.Error(err))
		}
	}

	// a failed first fetch is already reported and re-armed
	app.adapter.FetchConfigFile(ctx) //nolint:errcheck

	if app.config.ListenAddr != "" {
		g.Go(func() error { return app.serve(ctx) })
	}

	if app.config.Adapter.Local {
		g.Go(func() error {
			return watcher.Watch(ctx, app.localPath(), func() {
				if !app.adapter.Wake() {
					app.adapter.FetchConfigFile(ctx) //nolint:errcheck
				}
			})
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

func (app *App) serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              app.config.ListenAddr,
		Handler:           api.NewHandler(app.adapter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		zap.L().Info("serving control api", zap.String("addr", server.Addr))
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "control api stopped")
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdown)
	}
}

func (app *App) localPath() string {
	return filepath.Join(app.config.Directory, source.LocalFileName)
}
