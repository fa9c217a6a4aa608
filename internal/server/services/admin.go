package services

import (
	"context"

	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
)

// Operator actions used by the admin command. They bypass email
// confirmation and run one transaction each.

type CreateAccountRequest struct {
	Name     string               `json:"name" validate:"username"`
	Email    string               `json:"email" validate:"required,email,max=254"`
	Password string               `json:"password" validate:"password"`
	Status   models.AccountStatus `json:"status" validate:"required,oneof=Normal Admin"`
}

// CreateAccount registers an already confirmed account.
func (s *AuthService) CreateAccount(ctx context.Context, req CreateAccountRequest) (int64, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return 0, err
	}

	var id int64
	err := s.inTx(ctx, "create account", func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		id, err = s.accounts.CreateAccount(ctx, tx, req.Name, req.Email, req.Password)
		if err != nil {
			return err
		}
		account, err := s.accounts.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		return s.accounts.SwitchStatus(ctx, tx, account, req.Status)
	})
	return id, err
}

// SetStatus changes the status of the account registered under email.
// Banning also revokes every session of the account.
func (s *AuthService) SetStatus(ctx context.Context, email string, status models.AccountStatus) error {
	return s.inTx(ctx, "set status", func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.accounts.GetByEmail(ctx, tx, normalizeEmail(email))
		if err != nil {
			return err
		}
		if err := s.accounts.SwitchStatus(ctx, tx, account, status); err != nil {
			return err
		}
		if status == models.StatusBanned {
			return s.tokens.RevokeAllForAccount(ctx, tx, account.ID)
		}
		return nil
	})
}

// EnrollTOTP generates a fresh TOTP secret for the account registered under
// email and returns its otpauth:// provisioning URI.
func (s *AuthService) EnrollTOTP(ctx context.Context, email string) (string, error) {
	var uri string
	err := s.inTx(ctx, "enroll totp", func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.accounts.GetByEmail(ctx, tx, normalizeEmail(email))
		if err != nil {
			return err
		}

		secret, encoded := s.totp.GenerateSecret(s.gen)
		if err := s.accounts.EnrollTOTP(ctx, tx, account.ID, secret); err != nil {
			return err
		}
		uri = s.totp.ProvisionURI(encoded, account.Email)
		return nil
	})
	return uri, err
}
