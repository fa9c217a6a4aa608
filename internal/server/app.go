// Package server wires the pxauth server together: database pool and
// migrations, the mail dispatcher, the auth flows and the gRPC endpoint. It
// also owns signal handling and orderly shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/pxauth/internal/logging"
	"github.com/dmitrijs2005/pxauth/internal/server/config"
	"github.com/dmitrijs2005/pxauth/internal/server/mailer"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pxauth/internal/server/services"

	gs "github.com/dmitrijs2005/pxauth/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	dispatcher  *mailer.Dispatcher
	authService *services.AuthService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	renderer, err := mailer.NewRenderer()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mail templates error: %w", err)
	}
	dispatcher := mailer.NewDispatcher(c.MailQueueSize, renderer, newSender(c, logger), logger)

	as := services.NewAuthService(db, rm, c, dispatcher, logger)

	return &App{config: c, logger: logger, db: db, dispatcher: dispatcher, authService: as}, nil
}

// newSender picks SMTP delivery when a host is configured and falls back to
// logging rendered mail otherwise.
func newSender(c *config.Config, logger logging.Logger) mailer.Sender {
	if c.SMTPHost == "" {
		return mailer.NewLogSender(logger)
	}
	return mailer.NewSMTPSender(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword, c.SMTPFrom)
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

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or the server fails, then
// flushes queued mail and closes the pool.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.shutdown(context.Background())
}

func (app *App) shutdown(ctx context.Context) {
	app.dispatcher.Close()
	if n := app.dispatcher.Dropped(); n > 0 {
		app.logger.Warn(ctx, "confirmation emails dropped", "count", n)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
