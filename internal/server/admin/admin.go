// Package admin implements the pxadmin operator commands: schema migration,
// account creation, banning and TOTP enrollment.
package admin

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/dmitrijs2005/pxauth/internal/server/services"
)

var (
	ErrUsage            = errors.New("usage: pxadmin [config flags] <migrate|create [-admin]|ban|unban [-admin]|totp> [command flags]")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// Service is the operator surface of services.AuthService.
type Service interface {
	CreateAccount(ctx context.Context, req services.CreateAccountRequest) (int64, error)
	SetStatus(ctx context.Context, email string, status models.AccountStatus) error
	EnrollTOTP(ctx context.Context, email string) (string, error)
}

type App struct {
	svc     Service
	migrate func(context.Context) error
	in      *bufio.Reader
	out     io.Writer
}

func NewApp(svc Service, migrate func(context.Context) error, in io.Reader, out io.Writer) *App {
	return &App{svc: svc, migrate: migrate, in: bufio.NewReader(in), out: out}
}

// Run executes the command named by args[0] with the remaining args as its
// flags.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "migrate":
		if err := a.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Migrations applied")
		return nil
	case "create":
		return a.create(ctx, args[1:])
	case "ban":
		return a.ban(ctx, args[1:])
	case "unban":
		return a.unban(ctx, args[1:])
	case "totp":
		return a.enrollTOTP(ctx, args[1:])
	default:
		return ErrUsage
	}
}

func (a *App) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(a.out)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	isAdmin := fs.Bool("admin", false, "create with Admin status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if *name == "" {
		if *name, err = GetSimpleText(a.in, "Enter name", a.out); err != nil {
			return err
		}
	}
	if *email == "" {
		if *email, err = GetSimpleText(a.in, "Enter email", a.out); err != nil {
			return err
		}
	}

	password, err := GetPassword(a.out, "Enter password: ")
	if err != nil {
		return err
	}
	again, err := GetPassword(a.out, "Repeat password: ")
	if err != nil {
		return err
	}
	if password != again {
		return ErrPasswordMismatch
	}

	status := models.StatusNormal
	if *isAdmin {
		status = models.StatusAdmin
	}

	id, err := a.svc.CreateAccount(ctx, services.CreateAccountRequest{
		Name:     *name,
		Email:    *email,
		Password: password,
		Status:   status,
	})
	if err != nil {
		return describe(err)
	}

	fmt.Fprintf(a.out, "Created account %d (%s)\n", id, status)
	return nil
}

func (a *App) ban(ctx context.Context, args []string) error {
	fs := a.accountFlags("ban")
	if err := fs.Parse(args); err != nil {
		return err
	}
	email, err := requiredEmail(fs)
	if err != nil {
		return err
	}
	return a.setStatus(ctx, email, models.StatusBanned)
}

// unban restores Normal status. The previous status is not remembered, so a
// banned administrator needs -admin to get Admin back.
func (a *App) unban(ctx context.Context, args []string) error {
	fs := a.accountFlags("unban")
	isAdmin := fs.Bool("admin", false, "restore with Admin status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	email, err := requiredEmail(fs)
	if err != nil {
		return err
	}

	status := models.StatusNormal
	if *isAdmin {
		status = models.StatusAdmin
	}
	return a.setStatus(ctx, email, status)
}

func (a *App) setStatus(ctx context.Context, email string, status models.AccountStatus) error {
	if err := a.svc.SetStatus(ctx, email, status); err != nil {
		return describe(err)
	}
	fmt.Fprintf(a.out, "%s is now %s\n", email, status)
	return nil
}

func (a *App) enrollTOTP(ctx context.Context, args []string) error {
	fs := a.accountFlags("totp")
	if err := fs.Parse(args); err != nil {
		return err
	}
	email, err := requiredEmail(fs)
	if err != nil {
		return err
	}
	uri, err := a.svc.EnrollTOTP(ctx, email)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintln(a.out, "Add this URI to an authenticator app:")
	fmt.Fprintln(a.out, uri)
	return nil
}

func (a *App) accountFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	fs.String("email", "", "account email")
	return fs
}

func requiredEmail(fs *flag.FlagSet) (string, error) {
	email := fs.Lookup("email").Value.String()
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("-email is required")
	}
	return email, nil
}

// describe keeps operator-facing errors short; store diagnostics stay
// available through errors.Unwrap.
func describe(err error) error {
	e := common.AsError(err)
	return fmt.Errorf("%s: %w", e.Message, err)
}

// SplitCommand separates leading config flags from the command and its
// flags. valueFlags lists config flags that take a separate value.
func SplitCommand(args []string, valueFlags []string) []string {
	takesValue := make(map[string]bool, len(valueFlags))
	for _, f := range valueFlags {
		takesValue[f] = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return args[i:]
		}
		if takesValue[arg] {
			i++
		}
	}
	return nil
}
