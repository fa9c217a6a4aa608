package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/cryptox"
	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/logging"
	"github.com/dmitrijs2005/pxauth/internal/server/config"
	"github.com/dmitrijs2005/pxauth/internal/server/mailer"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pxauth/internal/server/validation"
)

type SignUpRequest struct {
	Name        string  `json:"name" validate:"username"`
	Email       string  `json:"email" validate:"required,email,max=254"`
	Password    string  `json:"password" validate:"password"`
	RedirectURL *string `json:"redirect_url,omitempty" validate:"omitempty,url"`
}

type SignUpResponse struct {
	AccountID int64  `json:"id"`
	CodeToken string `json:"code_token"`
}

type SignInRequest struct {
	Email       string  `json:"email" validate:"required,email,max=254"`
	Password    string  `json:"password" validate:"required,max=100"`
	TOTPCode    *string `json:"totp_code,omitempty" validate:"omitempty,numeric"`
	RedirectURL *string `json:"redirect_url,omitempty" validate:"omitempty,url"`
}

type SignInResponse struct {
	AccountID    int64                `json:"id"`
	SessionToken string               `json:"token"`
	Name         string               `json:"name"`
	Status       models.AccountStatus `json:"status"`
}

type EmailChallengeResponse struct {
	AccountID int64  `json:"id"`
	CodeToken string `json:"code_token"`
}

type ConfirmCodeRequest struct {
	Action    string `json:"action" validate:"required,oneof=Signup Signin PasswordReset TwoFactorEnroll"`
	CodeToken string `json:"code_token" validate:"hexbytes"`
	Code      string `json:"code" validate:"required,numeric,len=4"`
}

type ConfirmTokenRequest struct {
	Action string `json:"action" validate:"required,oneof=Signup Signin PasswordReset TwoFactorEnroll"`
	Token  string `json:"token" validate:"hexbytes"`
}

// ConfirmedSession is the payload shared by both confirmation outcomes.
type ConfirmedSession struct {
	AccountID    int64                `json:"id"`
	SessionToken string               `json:"token"`
	Name         string               `json:"name"`
	Email        string               `json:"email"`
	Status       models.AccountStatus `json:"status"`
	RedirectURL  string               `json:"redirect_url"`
}

// ConfirmResponse is either SignUpConfirmed or SignInConfirmed.
type ConfirmResponse interface {
	Session() ConfirmedSession
	isConfirmResponse()
}

type SignUpConfirmed struct{ ConfirmedSession }

type SignInConfirmed struct{ ConfirmedSession }

func (r SignUpConfirmed) Session() ConfirmedSession { return r.ConfirmedSession }
func (r SignInConfirmed) Session() ConfirmedSession { return r.ConfirmedSession }
func (SignUpConfirmed) isConfirmResponse()          {}
func (SignInConfirmed) isConfirmResponse()          {}

type StatusResponse struct {
	Name   string               `json:"name"`
	Email  string               `json:"email"`
	Status models.AccountStatus `json:"status"`
}

// AuthService runs the sign-up, sign-in and confirmation flows. Each flow is
// one transaction; mail goes out only after it committed.
type AuthService struct {
	db            *sql.DB
	cfg           *config.Config
	accounts      *AccountService
	confirmations *ConfirmationStore
	tokens        *AuthTokenStore
	totp          *cryptox.TOTP
	gen           cryptox.Generator
	validator     *validation.Validator
	mailer        mailer.Mailer
	now           func() time.Time
	logger        logging.Logger
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, mail mailer.Mailer, logger logging.Logger) *AuthService {
	return newAuthService(db, m, cfg, cryptox.OSGenerator{}, cryptox.NewBcryptHasher(cfg.BcryptCost), mail, logger)
}

func newAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, gen cryptox.Generator, hasher cryptox.PasswordHasher, mail mailer.Mailer, logger logging.Logger) *AuthService {
	logger = logger.With("module", "auth")

	confirmations := NewConfirmationStore(m, gen, cfg.ConfirmationTTL, cfg.MaxCodeTrials, logger)
	tokens := NewAuthTokenStore(m, gen, cfg.TouchInterval, logger)

	return &AuthService{
		db:            db,
		cfg:           cfg,
		accounts:      NewAccountService(m, hasher, confirmations, tokens, logger),
		confirmations: confirmations,
		tokens:        tokens,
		totp:          cryptox.NewTOTP(cfg.TOTPPeriod, cfg.TOTPDigits, cfg.TOTPSkew, cfg.TOTPIssuer),
		gen:           gen,
		validator:     validation.New(),
		mailer:        mail,
		now:           time.Now,
		logger:        logger,
	}
}

// setClock replaces the time source of the service and its stores.
func (s *AuthService) setClock(now func() time.Time) {
	s.now = now
	s.accounts.now = now
	s.confirmations.now = now
	s.tokens.now = now
}

// inTx runs fn in one transaction under the error disposition policy and
// always returns errors from the taxonomy.
func (s *AuthService) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	err := dbx.WithTxPolicy(ctx, s.db, nil, fn)
	if err == nil {
		return nil
	}

	e := common.AsError(err)
	switch e.Kind {
	case common.KindDatabaseError, common.KindInternalError:
		s.logger.Error(ctx, op+" failed", "kind", e.Kind, "error", err)
	default:
		s.logger.Debug(ctx, op+" rejected", "kind", e.Kind, "committed", !e.RollbackRequired())
	}
	return e
}

// SignUp registers an account and mails a confirmation link and code.
func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest, device models.DeviceInfo) (*SignUpResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	var (
		resp *SignUpResponse
		msg  mailer.Message
	)
	err := s.inTx(ctx, "sign up", func(ctx context.Context, tx dbx.DBTX) error {
		id, err := s.accounts.CreateAccount(ctx, tx, req.Name, req.Email, req.Password)
		if err != nil {
			return err
		}

		issued, err := s.confirmations.Insert(ctx, tx, id, models.ActionSignup, device, req.RedirectURL)
		if err != nil {
			return err
		}

		resp = &SignUpResponse{AccountID: id, CodeToken: hex.EncodeToString(issued.CodeToken)}
		msg = mailer.Message{
			RecipientName:  req.Name,
			RecipientEmail: req.Email,
			Subject:        "Confirm your email address",
			Template:       "confirm_signup",
			Context: map[string]any{
				"name":        req.Name,
				"url":         s.link("/signup/confirm", id, issued.Token),
				"code":        cryptox.PadCode(issued.Code, confirmationCodeDigits),
				"ttl_minutes": int(s.cfg.ConfirmationTTL.Minutes()),
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mailer.SendConfirmation(ctx, msg)
	return resp, nil
}

// SignIn checks credentials and the second factor, then opens a session.
func (s *AuthService) SignIn(ctx context.Context, req SignInRequest, device models.DeviceInfo) (*SignInResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	var resp *SignInResponse
	err := s.inTx(ctx, "sign in", func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.accounts.Authenticate(ctx, tx, req.Email, req.Password)
		if err != nil {
			return err
		}

		if err := s.checkSecondFactor(ctx, tx, account, req.TOTPCode, device); err != nil {
			return err
		}

		token, err := s.tokens.InsertForAccount(ctx, tx, account.ID, device)
		if err != nil {
			return err
		}

		resp = &SignInResponse{
			AccountID:    account.ID,
			SessionToken: hex.EncodeToString(token),
			Name:         account.Name,
			Status:       account.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "signed in", "account_id", resp.AccountID, "device", device.DeviceString)
	return resp, nil
}

func (s *AuthService) checkSecondFactor(ctx context.Context, tx dbx.DBTX, account *models.Account, code *string, device models.DeviceInfo) error {
	secret, enrolled, err := s.accounts.TOTPSecret(ctx, tx, account.ID)
	if err != nil {
		return err
	}

	if enrolled {
		if code == nil || *code == "" {
			return common.NewError(common.KindTFARequired)
		}
		if !s.totp.Verify(secret, *code, s.now()) {
			return common.NewError(common.KindInvalidTOTPCode)
		}
		return nil
	}

	if !s.cfg.EmailChallengeOnNewDevice {
		return nil
	}
	known, err := s.tokens.KnownDevice(ctx, tx, account.ID, device.DeviceString)
	if err != nil {
		return err
	}
	if !known {
		return common.NewError(common.KindTFARequiredOverEmail)
	}
	return nil
}

// SignInByEmail checks credentials and mails a Signin confirmation instead of
// opening a session. Earlier Signin confirmations are invalidated.
func (s *AuthService) SignInByEmail(ctx context.Context, req SignInRequest, device models.DeviceInfo) (*EmailChallengeResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	var (
		resp *EmailChallengeResponse
		msg  mailer.Message
	)
	err := s.inTx(ctx, "sign in by email", func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.accounts.Authenticate(ctx, tx, req.Email, req.Password)
		if err != nil {
			return err
		}

		if err := s.confirmations.InvalidateAll(ctx, tx, account.ID, models.ActionSignin); err != nil {
			return err
		}

		issued, err := s.confirmations.Insert(ctx, tx, account.ID, models.ActionSignin, device, req.RedirectURL)
		if err != nil {
			return err
		}

		ip := ""
		if device.IPAddress != nil {
			ip = *device.IPAddress
		}

		resp = &EmailChallengeResponse{AccountID: account.ID, CodeToken: hex.EncodeToString(issued.CodeToken)}
		msg = mailer.Message{
			RecipientName:  account.Name,
			RecipientEmail: account.Email,
			Subject:        "Confirm your sign-in",
			Template:       "confirm_signin",
			Context: map[string]any{
				"name":        account.Name,
				"device":      device.DeviceString,
				"ip":          ip,
				"url":         s.link("/signin/confirm", account.ID, issued.Token),
				"code":        cryptox.PadCode(issued.Code, confirmationCodeDigits),
				"ttl_minutes": int(s.cfg.ConfirmationTTL.Minutes()),
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mailer.SendConfirmation(ctx, msg)
	return resp, nil
}

// ConfirmCode completes a Signup or Signin confirmation with its code token
// and short code.
func (s *AuthService) ConfirmCode(ctx context.Context, accountID int64, req ConfirmCodeRequest, device models.DeviceInfo) (ConfirmResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	action, err := confirmableAction(req.Action)
	if err != nil {
		return nil, err
	}
	codeToken, err := hex.DecodeString(req.CodeToken)
	if err != nil {
		return nil, common.InvalidInput("code_token: Must be a hex string")
	}
	code, err := strconv.ParseUint(req.Code, 10, 32)
	if err != nil {
		return nil, common.InvalidInput("code: Must contain digits only")
	}

	var resp ConfirmResponse
	err = s.inTx(ctx, "confirm code", func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.confirmations.CheckAndMarkUsed(ctx, tx, accountID, action, codeToken, uint32(code))
		if err != nil {
			return err
		}
		resp, err = s.complete(ctx, tx, c, device)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ConfirmToken completes a Signup or Signin confirmation with the emailed
// link token.
func (s *AuthService) ConfirmToken(ctx context.Context, accountID int64, req ConfirmTokenRequest, device models.DeviceInfo) (ConfirmResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	action, err := confirmableAction(req.Action)
	if err != nil {
		return nil, err
	}
	token, err := hex.DecodeString(req.Token)
	if err != nil {
		return nil, common.InvalidInput("token: Must be a hex string")
	}

	var resp ConfirmResponse
	err = s.inTx(ctx, "confirm token", func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.confirmations.CheckTokenAndMarkUsed(ctx, tx, accountID, action, token)
		if err != nil {
			return err
		}
		resp, err = s.complete(ctx, tx, c, device)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// complete applies a redeemed confirmation: Signup activates the account,
// both actions open a session.
func (s *AuthService) complete(ctx context.Context, tx dbx.DBTX, c *models.Confirmation, device models.DeviceInfo) (ConfirmResponse, error) {
	account, err := s.accounts.GetByID(ctx, tx, c.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status == models.StatusBanned {
		return nil, common.NewError(common.KindUserBanned)
	}

	switch c.Action {
	case models.ActionSignup:
		if account.Status == models.StatusUnconfirmed {
			if err := s.accounts.SwitchStatus(ctx, tx, account, models.StatusNormal); err != nil {
				return nil, err
			}
		}
	case models.ActionSignin:
		if account.Status == models.StatusUnconfirmed {
			return nil, common.NewError(common.KindUserUnconfirmed)
		}
	}

	if err := s.confirmations.InvalidateAll(ctx, tx, account.ID, c.Action); err != nil {
		return nil, err
	}

	token, err := s.tokens.InsertForAccount(ctx, tx, account.ID, device)
	if err != nil {
		return nil, err
	}

	session := ConfirmedSession{
		AccountID:    account.ID,
		SessionToken: hex.EncodeToString(token),
		Name:         account.Name,
		Email:        account.Email,
		Status:       account.Status,
		RedirectURL:  s.cfg.FrontendHost,
	}
	if c.RedirectURL != nil && *c.RedirectURL != "" {
		session.RedirectURL = *c.RedirectURL
	}

	if c.Action == models.ActionSignup {
		return SignUpConfirmed{session}, nil
	}
	return SignInConfirmed{session}, nil
}

// ResolveSession authenticates a request by its session token. The use is
// recorded after the lookup committed; a failed touch is only logged.
func (s *AuthService) ResolveSession(ctx context.Context, accountID int64, token []byte) (*models.Account, error) {
	var (
		account *models.Account
		session *models.SessionToken
	)
	err := s.inTx(ctx, "resolve session", func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		session, err = s.tokens.Resolve(ctx, tx, accountID, token)
		if err != nil {
			return err
		}

		account, err = s.accounts.GetByID(ctx, tx, accountID)
		if err != nil {
			return err
		}

		switch account.Status {
		case models.StatusUnconfirmed:
			return common.NewError(common.KindUserUnconfirmed)
		case models.StatusBanned:
			return common.NewError(common.KindUserBanned)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Touch(ctx, s.db, session); err != nil {
		s.logger.Warn(ctx, "failed to touch auth token", "account_id", accountID, "error", err)
	}
	return account, nil
}

func (s *AuthService) Status(ctx context.Context, account *models.Account) *StatusResponse {
	return &StatusResponse{Name: account.Name, Email: account.Email, Status: account.Status}
}

func (s *AuthService) link(path string, accountID int64, token []byte) string {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(accountID, 10))
	q.Set("token", hex.EncodeToString(token))
	return strings.TrimRight(s.cfg.FrontendHost, "/") + path + "?" + q.Encode()
}

// confirmableAction admits the actions a confirm request can complete.
func confirmableAction(raw string) (models.ConfirmationAction, error) {
	switch a := models.ConfirmationAction(raw); a {
	case models.ActionSignup, models.ActionSignin:
		return a, nil
	}
	return "", common.NewError(common.KindBadRequest)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
