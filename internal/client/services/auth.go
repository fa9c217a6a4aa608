// Package services contains application services for pxctl. This file holds
// the session service: sign-up, sign-in, confirmation and the locally cached
// session and pending confirmation.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/client/client"
	"github.com/dmitrijs2005/pxauth/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/server/models"

	api "github.com/dmitrijs2005/pxauth/internal/server/services"
)

const (
	keySessionAccountID = "session.account_id"
	keySessionToken     = "session.token"
	keySessionName      = "session.name"

	pendingPrefix       = "pending."
	keyPendingAccountID = pendingPrefix + "account_id"
	keyPendingAction    = pendingPrefix + "action"
	keyPendingCodeToken = pendingPrefix + "code_token"
)

// Session is the signed-in account as remembered by pxctl.
type Session struct {
	AccountID int64
	Token     string
	Name      string
}

// Pending is a confirmation waiting for the code from the email.
type Pending struct {
	AccountID int64
	Action    models.ConfirmationAction
	CodeToken string
}

// AuthService defines the account operations of the CLI.
//
// SignIn and Confirm persist the session they obtain; SignUp and
// SignInByEmail persist the pending confirmation that Confirm later answers.
// All methods honor context cancellation.
type AuthService interface {
	SignUp(ctx context.Context, name, email, password string) (*Pending, error)
	SignIn(ctx context.Context, email, password, totpCode string) (*Session, error)
	SignInByEmail(ctx context.Context, email, password string) (*Pending, error)
	Confirm(ctx context.Context, code string) (*Session, error)
	Status(ctx context.Context) (*api.StatusResponse, error)
	Current(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error
	Close(ctx context.Context) error
}

// authService is the concrete AuthService backed by a remote Client
// and the local SQLite store.
type authService struct {
	client  client.Client
	db      *sql.DB
	timeout time.Duration
}

// NewAuthService constructs an AuthService bound to the given API client and
// store. timeout bounds each server call; zero means no extra deadline.
func NewAuthService(client client.Client, db *sql.DB, timeout time.Duration) AuthService {
	return &authService{client: client, db: db, timeout: timeout}
}

func (a *authService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *authService) SignUp(ctx context.Context, name, email, password string) (*Pending, error) {
	rctx, cancel := a.withTimeout(ctx)
	defer cancel()

	resp, err := a.client.SignUp(rctx, api.SignUpRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	p := &Pending{AccountID: resp.AccountID, Action: models.ActionSignup, CodeToken: resp.CodeToken}
	if err := a.savePending(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (a *authService) SignIn(ctx context.Context, email, password, totpCode string) (*Session, error) {
	req := api.SignInRequest{Email: email, Password: password}
	if totpCode != "" {
		req.TOTPCode = &totpCode
	}

	rctx, cancel := a.withTimeout(ctx)
	defer cancel()

	resp, err := a.client.SignIn(rctx, req)
	if err != nil {
		return nil, err
	}

	s := &Session{AccountID: resp.AccountID, Token: resp.SessionToken, Name: resp.Name}
	if err := a.saveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *authService) SignInByEmail(ctx context.Context, email, password string) (*Pending, error) {
	rctx, cancel := a.withTimeout(ctx)
	defer cancel()

	resp, err := a.client.SignInByEmail(rctx, api.SignInRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	p := &Pending{AccountID: resp.AccountID, Action: models.ActionSignin, CodeToken: resp.CodeToken}
	if err := a.savePending(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Confirm answers the pending confirmation with code. A wrong code keeps the
// pending record so the code can be retyped; a used, expired or exhausted
// confirmation is forgotten.
func (a *authService) Confirm(ctx context.Context, code string) (*Session, error) {
	p, err := a.loadPending(ctx)
	if err != nil {
		return nil, err
	}

	rctx, cancel := a.withTimeout(ctx)
	defer cancel()

	reply, err := a.client.ConfirmCode(rctx, p.AccountID, api.ConfirmCodeRequest{
		Action:    string(p.Action),
		CodeToken: p.CodeToken,
		Code:      code,
	})
	if err != nil {
		if confirmationSpent(err) {
			if derr := a.clearPending(ctx); derr != nil {
				return nil, fmt.Errorf("%w (forget pending confirmation: %v)", err, derr)
			}
		}
		return nil, err
	}

	s := &Session{AccountID: reply.AccountID, Token: reply.SessionToken, Name: reply.Name}
	if err := a.saveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *authService) Status(ctx context.Context) (*api.StatusResponse, error) {
	s, err := a.Current(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, client.ErrNotSignedIn
	}

	rctx, cancel := a.withTimeout(ctx)
	defer cancel()

	return a.client.Status(rctx, s.AccountID, s.Token)
}

// Current returns the stored session, or nil when nobody is signed in.
func (a *authService) Current(ctx context.Context) (*Session, error) {
	repo := metadata.NewSQLiteRepository(a.db)

	id, err := repo.Get(ctx, keySessionAccountID)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, nil
	}
	accountID, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session: %w", err)
	}

	token, err := repo.Get(ctx, keySessionToken)
	if err != nil {
		return nil, err
	}
	name, err := repo.Get(ctx, keySessionName)
	if err != nil {
		return nil, err
	}
	return &Session{AccountID: accountID, Token: string(token), Name: string(name)}, nil
}

// SignOut forgets the local session and any pending confirmation.
func (a *authService) SignOut(ctx context.Context) error {
	return metadata.NewSQLiteRepository(a.db).Clear(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}

// saveSession replaces the stored session and drops the answered
// confirmation in one transaction.
func (a *authService) saveSession(ctx context.Context, s *Session) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.DeletePrefix(ctx, pendingPrefix); err != nil {
			return err
		}
		if err := repo.Set(ctx, keySessionAccountID, []byte(strconv.FormatInt(s.AccountID, 10))); err != nil {
			return err
		}
		if err := repo.Set(ctx, keySessionToken, []byte(s.Token)); err != nil {
			return err
		}
		return repo.Set(ctx, keySessionName, []byte(s.Name))
	})
}

func (a *authService) savePending(ctx context.Context, p *Pending) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, keyPendingAccountID, []byte(strconv.FormatInt(p.AccountID, 10))); err != nil {
			return err
		}
		if err := repo.Set(ctx, keyPendingAction, []byte(p.Action)); err != nil {
			return err
		}
		return repo.Set(ctx, keyPendingCodeToken, []byte(p.CodeToken))
	})
}

func (a *authService) clearPending(ctx context.Context) error {
	return metadata.NewSQLiteRepository(a.db).DeletePrefix(ctx, pendingPrefix)
}

// confirmationSpent reports errors after which the pending confirmation can
// never succeed.
func confirmationSpent(err error) bool {
	switch common.KindOf(err) {
	case common.KindConfirmationAlreadyUsed, common.KindConfirmationExpired, common.KindConfirmationTooManyAttempts:
		return true
	}
	return false
}

func (a *authService) loadPending(ctx context.Context) (*Pending, error) {
	repo := metadata.NewSQLiteRepository(a.db)

	id, err := repo.Get(ctx, keyPendingAccountID)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, client.ErrNoPending
	}
	accountID, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt pending confirmation: %w", err)
	}

	action, err := repo.Get(ctx, keyPendingAction)
	if err != nil {
		return nil, err
	}
	codeToken, err := repo.Get(ctx, keyPendingCodeToken)
	if err != nil {
		return nil, err
	}
	return &Pending{AccountID: accountID, Action: models.ConfirmationAction(action), CodeToken: string(codeToken)}, nil
}
