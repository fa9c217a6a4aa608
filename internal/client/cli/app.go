package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/pxauth/internal/client/client"
	"github.com/dmitrijs2005/pxauth/internal/client/config"
	"github.com/dmitrijs2005/pxauth/internal/client/services"
)

type App struct {
	config      *config.Config
	authService services.AuthService
	session     *services.Session
	reader      *bufio.Reader
	out         io.Writer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	db, err := client.InitDatabase(ctx, c.StorePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing store: %w", err)
	}

	apiClient, err := client.NewPxAuthClient(c.ServerEndpointAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	as := services.NewAuthService(apiClient, db, c.RequestTimeout)

	return &App{config: c, authService: as, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

// Run restores the stored session and serves the REPL until the user exits.
func (a *App) Run(ctx context.Context) error {
	defer a.authService.Close(ctx)

	s, err := a.authService.Current(ctx)
	if err != nil {
		return err
	}
	a.session = s

	fmt.Fprintln(a.out, "pxctl (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
	return nil
}

func (a *App) isSignedIn() bool {
	return a.session != nil
}

func (a *App) getStatus() string {
	if a.session == nil {
		return ""
	}
	return fmt.Sprintf("(%s)", a.session.Name)
}
