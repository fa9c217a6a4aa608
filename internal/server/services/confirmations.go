package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/cryptox"
	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/logging"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/repomanager"
)

const (
	confirmationTokenBytes     = 16
	confirmationCodeDigits     = 4
	confirmationInsertAttempts = 3
)

// ConfirmationStore issues and redeems one-time confirmations. Every method
// runs on the caller's transaction handle.
type ConfirmationStore struct {
	repomanager repomanager.RepositoryManager
	gen         cryptox.Generator
	ttl         time.Duration
	maxTrials   int
	now         func() time.Time
	logger      logging.Logger
}

func NewConfirmationStore(m repomanager.RepositoryManager, gen cryptox.Generator, ttl time.Duration, maxTrials int, logger logging.Logger) *ConfirmationStore {
	if maxTrials < 1 {
		maxTrials = 1
	}
	return &ConfirmationStore{
		repomanager: m,
		gen:         gen,
		ttl:         ttl,
		maxTrials:   maxTrials,
		now:         time.Now,
		logger:      logger,
	}
}

// Insert creates a confirmation for (accountID, action) and returns the
// secrets to deliver. A token collision draws fresh values; after
// confirmationInsertAttempts collisions it gives up with a DatabaseError.
func (s *ConfirmationStore) Insert(ctx context.Context, tx dbx.DBTX, accountID int64, action models.ConfirmationAction, device models.DeviceInfo, redirectURL *string) (*models.IssuedConfirmation, error) {
	repo := s.repomanager.Confirmations(tx)

	for attempt := 1; attempt <= confirmationInsertAttempts; attempt++ {
		c := &models.Confirmation{
			AccountID:    accountID,
			Action:       action,
			Token:        s.gen.RandomBytes(confirmationTokenBytes),
			CodeToken:    s.gen.RandomBytes(confirmationTokenBytes),
			Code:         s.gen.RandomDigits(confirmationCodeDigits),
			Date:         s.now(),
			RedirectURL:  redirectURL,
			DeviceString: device.DeviceString,
			IPAddress:    device.IPAddress,
		}

		inserted, err := repo.Insert(ctx, c)
		if err != nil {
			return nil, common.DatabaseError("Failed to insert confirmation", err)
		}
		if inserted {
			return &models.IssuedConfirmation{Token: c.Token, CodeToken: c.CodeToken, Code: c.Code}, nil
		}

		s.logger.Warn(ctx, "confirmation token collision", "account_id", accountID, "action", action, "attempt", attempt)
	}

	return nil, common.DatabaseError("Failed to insert confirmation", common.ErrTokenAllocationExhausted)
}

// FindByCodeToken looks the confirmation up without touching it.
func (s *ConfirmationStore) FindByCodeToken(ctx context.Context, tx dbx.DBTX, accountID int64, action models.ConfirmationAction, codeToken []byte, code uint32) (*models.Confirmation, error) {
	c, err := s.repomanager.Confirmations(tx).FindByCodeToken(ctx, accountID, action, codeToken, code)
	if err != nil {
		return nil, notFoundAs(err, common.KindConfirmationNotFound, "Failed to get confirmation")
	}
	return c, nil
}

func (s *ConfirmationStore) FindByToken(ctx context.Context, tx dbx.DBTX, accountID int64, action models.ConfirmationAction, token []byte) (*models.Confirmation, error) {
	c, err := s.repomanager.Confirmations(tx).FindByToken(ctx, accountID, action, token)
	if err != nil {
		return nil, notFoundAs(err, common.KindConfirmationNotFound, "Failed to get confirmation")
	}
	return c, nil
}

// CheckAndMarkUsed redeems a confirmation with its code token and code.
//
// A wrong code costs one trial and fails with ConfirmationNotFound; the
// counter is committed. Once trials reach the limit, or the record is past
// its TTL, the record is burnt and the matching error keeps that write.
func (s *ConfirmationStore) CheckAndMarkUsed(ctx context.Context, tx dbx.DBTX, accountID int64, action models.ConfirmationAction, codeToken []byte, code uint32) (*models.Confirmation, error) {
	repo := s.repomanager.Confirmations(tx)

	c, err := repo.LockByCodeToken(ctx, accountID, action, codeToken)
	if err != nil {
		return nil, notFoundAs(err, common.KindConfirmationNotFound, "Failed to get confirmation")
	}

	if err := s.checkUsable(ctx, tx, c); err != nil {
		return nil, err
	}

	if c.CodeTrials >= s.maxTrials {
		if err := s.burn(ctx, tx, c); err != nil {
			return nil, err
		}
		return nil, common.NewError(common.KindConfirmationTooManyAttempts)
	}

	if subtle.ConstantTimeEq(int32(c.Code), int32(code)) != 1 {
		trials, err := repo.IncrementTrials(ctx, accountID, action, c.Token)
		if err != nil {
			return nil, common.DatabaseError("Failed to increment code trials", err)
		}
		c.CodeTrials = trials

		if trials >= s.maxTrials {
			if err := s.burn(ctx, tx, c); err != nil {
				return nil, err
			}
			return nil, common.NewError(common.KindConfirmationTooManyAttempts)
		}
		return nil, common.NewError(common.KindConfirmationNotFound).KeepChanges()
	}

	return s.redeem(ctx, tx, c)
}

// CheckTokenAndMarkUsed redeems a confirmation with its emailed link token.
// Tokens are not guessable, so no trial accounting happens here.
func (s *ConfirmationStore) CheckTokenAndMarkUsed(ctx context.Context, tx dbx.DBTX, accountID int64, action models.ConfirmationAction, token []byte) (*models.Confirmation, error) {
	c, err := s.repomanager.Confirmations(tx).LockByToken(ctx, accountID, action, token)
	if err != nil {
		return nil, notFoundAs(err, common.KindConfirmationNotFound, "Failed to get confirmation")
	}

	if err := s.checkUsable(ctx, tx, c); err != nil {
		return nil, err
	}

	return s.redeem(ctx, tx, c)
}

// InvalidateAll burns every outstanding confirmation of (accountID, action).
func (s *ConfirmationStore) InvalidateAll(ctx context.Context, tx dbx.DBTX, accountID int64, action models.ConfirmationAction) error {
	n, err := s.repomanager.Confirmations(tx).InvalidateAll(ctx, accountID, action)
	if err != nil {
		return common.DatabaseError("Failed to invalidate confirmations", err)
	}
	if n > 0 {
		s.logger.Debug(ctx, "confirmations invalidated", "account_id", accountID, "action", action, "count", n)
	}
	return nil
}

func (s *ConfirmationStore) DeleteAllForAccount(ctx context.Context, tx dbx.DBTX, accountID int64) error {
	if _, err := s.repomanager.Confirmations(tx).DeleteAllForAccount(ctx, accountID); err != nil {
		return common.DatabaseError("Failed to delete confirmations", err)
	}
	return nil
}

func (s *ConfirmationStore) checkUsable(ctx context.Context, tx dbx.DBTX, c *models.Confirmation) error {
	if c.Used {
		return common.NewError(common.KindConfirmationAlreadyUsed)
	}
	if c.Expired(s.now(), s.ttl) {
		if err := s.burn(ctx, tx, c); err != nil {
			return err
		}
		return common.NewError(common.KindConfirmationExpired)
	}
	return nil
}

func (s *ConfirmationStore) burn(ctx context.Context, tx dbx.DBTX, c *models.Confirmation) error {
	if _, err := s.repomanager.Confirmations(tx).MarkUsed(ctx, c.AccountID, c.Action, c.Token); err != nil {
		return common.DatabaseError("Failed to mark confirmation used", err)
	}
	c.Used = true
	return nil
}

func (s *ConfirmationStore) redeem(ctx context.Context, tx dbx.DBTX, c *models.Confirmation) (*models.Confirmation, error) {
	marked, err := s.repomanager.Confirmations(tx).MarkUsed(ctx, c.AccountID, c.Action, c.Token)
	if err != nil {
		return nil, common.DatabaseError("Failed to mark confirmation used", err)
	}
	if !marked {
		return nil, common.NewError(common.KindConfirmationAlreadyUsed)
	}
	c.Used = true
	return c, nil
}

// notFoundAs maps a repository miss to kind and anything else to a
// DatabaseError with msg.
func notFoundAs(err error, kind common.Kind, msg string) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.NewError(kind)
	}
	return common.DatabaseError(msg, err)
}
