package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/cryptox"
	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/logging"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/repomanager"
)

// Burned on unknown emails so a miss costs as much as a wrong password.
const dummyPassword = "pxauth-dummy-password"

// AccountService owns account records and credential checks.
type AccountService struct {
	repomanager   repomanager.RepositoryManager
	hasher        cryptox.PasswordHasher
	confirmations *ConfirmationStore
	tokens        *AuthTokenStore
	now           func() time.Time
	logger        logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAccountService(m repomanager.RepositoryManager, hasher cryptox.PasswordHasher, confirmations *ConfirmationStore, tokens *AuthTokenStore, logger logging.Logger) *AccountService {
	return &AccountService{
		repomanager:   m,
		hasher:        hasher,
		confirmations: confirmations,
		tokens:        tokens,
		now:           time.Now,
		logger:        logger,
	}
}

// CreateAccount registers email and returns the account id.
//
// An Unconfirmed account with the same email is an abandoned registration:
// it is overwritten in place and its confirmations and sessions are wiped.
// Any other existing account yields EmailAlreadyExists.
func (s *AccountService) CreateAccount(ctx context.Context, tx dbx.DBTX, name, email, password string) (int64, error) {
	repo := s.repomanager.Users(tx)

	existing, err := repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Status != models.StatusUnconfirmed {
			return 0, common.NewError(common.KindEmailAlreadyExists)
		}
		return existing.ID, s.reRegister(ctx, tx, existing.ID, name, password)
	case !errors.Is(err, common.ErrorNotFound):
		return 0, common.DatabaseError("Failed to get already existing user", err)
	}

	hash, err := s.hash(password)
	if err != nil {
		return 0, err
	}

	id, err := repo.Create(ctx, &models.Account{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreationDate: s.now(),
		Status:       models.StatusUnconfirmed,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return 0, common.NewError(common.KindEmailAlreadyExists)
		}
		return 0, common.DatabaseError("Failed to insert user", err)
	}

	s.logger.Info(ctx, "account created", "account_id", id)
	return id, nil
}

func (s *AccountService) reRegister(ctx context.Context, tx dbx.DBTX, id int64, name, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}

	if err := s.repomanager.Users(tx).UpdateRegistration(ctx, id, name, hash, s.now()); err != nil {
		return notFoundAs(err, common.KindUserNotFound, "Failed to update user")
	}
	if err := s.confirmations.DeleteAllForAccount(ctx, tx, id); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForAccount(ctx, tx, id); err != nil {
		return err
	}

	s.logger.Info(ctx, "abandoned registration replaced", "account_id", id)
	return nil
}

// SwitchStatus persists status and updates account to match.
func (s *AccountService) SwitchStatus(ctx context.Context, tx dbx.DBTX, account *models.Account, status models.AccountStatus) error {
	if !status.Valid() {
		return common.NewError(common.KindBadRequest)
	}
	if err := s.repomanager.Users(tx).UpdateStatus(ctx, account.ID, status); err != nil {
		return notFoundAs(err, common.KindUserNotFound, "Failed to update user status")
	}

	s.logger.Info(ctx, "account status changed", "account_id", account.ID, "from", account.Status, "to", status)
	account.Status = status
	return nil
}

func (s *AccountService) GetByID(ctx context.Context, tx dbx.DBTX, id int64) (*models.Account, error) {
	a, err := s.repomanager.Users(tx).GetByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, common.KindUserNotFound, "Failed to get user")
	}
	return a, nil
}

func (s *AccountService) GetByEmail(ctx context.Context, tx dbx.DBTX, email string) (*models.Account, error) {
	a, err := s.repomanager.Users(tx).GetByEmail(ctx, email)
	if err != nil {
		return nil, notFoundAs(err, common.KindUserNotFound, "Failed to get user")
	}
	return a, nil
}

// Authenticate checks email and password. Unknown emails and wrong passwords
// produce the same InvalidEmailOrPassword error after the same bcrypt work.
// Status is only revealed once the password matched.
func (s *AccountService) Authenticate(ctx context.Context, tx dbx.DBTX, email, password string) (*models.Account, error) {
	a, err := s.repomanager.Users(tx).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, common.DatabaseError("Failed to get user", err)
		}
		s.hasher.Verify(password, s.dummy())
		return nil, common.NewError(common.KindInvalidEmailOrPassword)
	}

	if !s.hasher.Verify(password, a.PasswordHash) {
		return nil, common.NewError(common.KindInvalidEmailOrPassword)
	}

	switch a.Status {
	case models.StatusBanned:
		return nil, common.NewError(common.KindUserBanned)
	case models.StatusUnconfirmed:
		return nil, common.NewError(common.KindUserUnconfirmed)
	}
	return a, nil
}

// TOTPSecret returns the account's TOTP secret and whether one is enrolled.
func (s *AccountService) TOTPSecret(ctx context.Context, tx dbx.DBTX, accountID int64) ([]byte, bool, error) {
	secret, err := s.repomanager.TotpSecrets(tx).Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, false, nil
		}
		return nil, false, common.DatabaseError("Failed to get totp secret", err)
	}
	return secret.Secret, true, nil
}

// EnrollTOTP stores secret for accountID, replacing any previous one.
func (s *AccountService) EnrollTOTP(ctx context.Context, tx dbx.DBTX, accountID int64, secret []byte) error {
	err := s.repomanager.TotpSecrets(tx).Upsert(ctx, &models.TotpSecret{
		AccountID:    accountID,
		CreationDate: s.now(),
		Secret:       secret,
	})
	if err != nil {
		return common.DatabaseError("Failed to store totp secret", err)
	}
	return nil
}

func (s *AccountService) hash(password string) (string, error) {
	h, err := s.hasher.Hash(password)
	if err != nil {
		e := common.NewError(common.KindInternalError)
		e.Err = err
		return "", e
	}
	return h, nil
}

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error(context.Background(), "failed to prepare dummy hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
