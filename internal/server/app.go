// Package server initializes and runs the chat server. It selects the
// storage backend, wires the account, message and session services into the
// request dispatcher, starts the three listeners, and handles graceful
// shutdown on OS signals.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/chatline/internal/logging"
	"github.com/dmitrijs2005/chatline/internal/protocol"
	"github.com/dmitrijs2005/chatline/internal/server/accounts"
	"github.com/dmitrijs2005/chatline/internal/server/config"
	"github.com/dmitrijs2005/chatline/internal/server/dispatch"
	"github.com/dmitrijs2005/chatline/internal/server/messages"
	"github.com/dmitrijs2005/chatline/internal/server/session"
	"github.com/dmitrijs2005/chatline/internal/server/store"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	sessions *session.Manager
	disp     *dispatch.Dispatcher
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	var st store.Store
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database DSN configured, using in-memory store")
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		st = pg
	}

	accts := accounts.NewService(st, logger)
	sessions := session.NewManager(logger)
	msgs := messages.NewService(st, accts, sessions, logger)
	disp := dispatch.NewDispatcher(accts, msgs, sessions, logger)

	return &App{config: c, logger: logger, sessions: sessions, disp: disp}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) runListener(ctx context.Context, cancelFunc context.CancelFunc, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	jsonL := dispatch.NewTCPListener(app.config.JSONAddr, protocol.JSONCodec{}, app.disp, app.logger)
	binL := dispatch.NewTCPListener(app.config.BinaryAddr, protocol.BinaryCodec{}, app.disp, app.logger)
	wsL := dispatch.NewWSListener(app.config.WSAddr, app.disp, app.logger)

	var wg sync.WaitGroup
	for _, l := range []func(context.Context) error{jsonL.Run, binL.Run, wsL.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.runListener(ctx, cancelFunc, l)
		}()
	}

	<-ctx.Done()
	app.logger.Info(ctx, "Shutting down...")

	app.sessions.CloseAll()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(app.config.ShutdownTimeout):
		app.logger.Warn(ctx, "shutdown grace period expired")
	}
}
