package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/pxauth/internal/logging"
	"github.com/dmitrijs2005/pxauth/internal/server/admin"
	"github.com/dmitrijs2005/pxauth/internal/server/config"
	"github.com/dmitrijs2005/pxauth/internal/server/mailer"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pxauth/internal/server/services"
)

// configFlags take a separate value and may precede the command.
var configFlags = []string{"-a", "-d", "-f", "-l", "-t", "-n", "-m", "-c", "-config"}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSON(os.Stderr, cfg.LogLevel)

	args := admin.SplitCommand(os.Args[1:], configFlags)
	if len(args) == 0 {
		return admin.ErrUsage
	}

	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()

	renderer, err := mailer.NewRenderer()
	if err != nil {
		return fmt.Errorf("mail templates error: %w", err)
	}
	// Operator commands never send confirmations; the log sender is enough.
	dispatcher := mailer.NewDispatcher(1, renderer, mailer.NewLogSender(logger), logger)
	defer dispatcher.Close()

	svc := services.NewAuthService(db, rm, cfg, dispatcher, logger)
	migrate := func(ctx context.Context) error { return rm.RunMigrations(ctx, db) }

	return admin.NewApp(svc, migrate, os.Stdin, os.Stdout).Run(ctx, args)
}
