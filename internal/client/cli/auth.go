package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pxauth/internal/client/client"
	"github.com/dmitrijs2005/pxauth/internal/client/services"
	"github.com/dmitrijs2005/pxauth/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var errPasswordMismatch = errors.New("passwords do not match")

// SignUp registers an account and asks for the emailed code right away. An
// unanswered code stays pending for the confirm command.
func (a *App) SignUp(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter name", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out, "Enter password: ")
	if err != nil {
		return err
	}
	again, err := getPassword(a.out, "Repeat password: ")
	if err != nil {
		return err
	}
	if password != again {
		return errPasswordMismatch
	}

	if _, err := a.authService.SignUp(ctx, name, email, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "A confirmation code was sent to", email)
	return a.Confirm(ctx)
}

// SignIn authenticates with email and password. A TOTP challenge is answered
// inline; an email challenge requests a code and continues with Confirm.
func (a *App) SignIn(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out, "Enter password: ")
	if err != nil {
		return err
	}

	s, err := a.authService.SignIn(ctx, email, password, "")
	switch {
	case common.IsKind(err, common.KindTFARequired):
		code, err := getSimpleText(a.reader, "Enter authenticator code", a.out)
		if err != nil {
			return err
		}
		s, err = a.authService.SignIn(ctx, email, password, code)
		if err != nil {
			return err
		}

	case common.IsKind(err, common.KindTFARequiredOverEmail):
		if _, err := a.authService.SignInByEmail(ctx, email, password); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "New device: a sign-in code was sent to", email)
		return a.Confirm(ctx)

	case err != nil:
		return err
	}

	a.signedIn(s)
	return nil
}

// Confirm answers the pending confirmation.
func (a *App) Confirm(ctx context.Context) error {
	code, err := getSimpleText(a.reader, "Enter the code from the email", a.out)
	if err != nil {
		return err
	}

	s, err := a.authService.Confirm(ctx, code)
	if err != nil {
		return err
	}

	a.signedIn(s)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.authService.Status(ctx)
	if err != nil {
		if common.IsKind(err, common.KindUnauthorized) || common.IsKind(err, common.KindUserNotFound) {
			// the server no longer knows this session
			_ = a.SignOut(ctx)
		}
		return err
	}

	fmt.Fprintf(a.out, "%s <%s>: %s\n", st.Name, st.Email, st.Status)
	return nil
}

// SignOut forgets the local session.
func (a *App) SignOut(ctx context.Context) error {
	if err := a.authService.SignOut(ctx); err != nil {
		return err
	}
	a.session = nil
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *App) signedIn(s *services.Session) {
	a.session = s
	fmt.Fprintf(a.out, "Signed in as %s\n", s.Name)
}

// describe renders err for the prompt: the server's message for domain
// errors, a hint when the server is down.
func describe(err error) string {
	if errors.Is(err, client.ErrUnavailable) {
		return "server unavailable, try again later"
	}
	var e *common.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
