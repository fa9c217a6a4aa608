package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/cryptox"
	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/logging"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/repomanager"
)

const (
	sessionTokenBytes     = 32
	sessionInsertAttempts = 4
)

// AuthTokenStore manages opaque session tokens.
type AuthTokenStore struct {
	repomanager   repomanager.RepositoryManager
	gen           cryptox.Generator
	touchInterval time.Duration
	now           func() time.Time
	logger        logging.Logger
}

func NewAuthTokenStore(m repomanager.RepositoryManager, gen cryptox.Generator, touchInterval time.Duration, logger logging.Logger) *AuthTokenStore {
	return &AuthTokenStore{
		repomanager:   m,
		gen:           gen,
		touchInterval: touchInterval,
		now:           time.Now,
		logger:        logger,
	}
}

// InsertForAccount mints a session token for accountID and returns its raw
// bytes. Collisions are retried up to sessionInsertAttempts times.
func (s *AuthTokenStore) InsertForAccount(ctx context.Context, tx dbx.DBTX, accountID int64, device models.DeviceInfo) ([]byte, error) {
	repo := s.repomanager.AuthTokens(tx)

	for attempt := 1; attempt <= sessionInsertAttempts; attempt++ {
		now := s.now()
		t := &models.SessionToken{
			AccountID:    accountID,
			Token:        s.gen.RandomBytes(sessionTokenBytes),
			CreationDate: now,
			LastUseDate:  now,
			DeviceString: device.DeviceString,
			IPAddress:    device.IPAddress,
		}

		inserted, err := repo.Insert(ctx, t)
		if err != nil {
			return nil, common.DatabaseError("Failed to insert auth token", err)
		}
		if inserted {
			return t.Token, nil
		}

		s.logger.Warn(ctx, "auth token collision", "account_id", accountID, "attempt", attempt)
	}

	return nil, common.DatabaseError("Failed to insert auth token", common.ErrTokenAllocationExhausted)
}

// Resolve finds the session token. A missing token is reported as
// UserNotFound so callers cannot tell a bad token from a bad account id.
func (s *AuthTokenStore) Resolve(ctx context.Context, tx dbx.DBTX, accountID int64, token []byte) (*models.SessionToken, error) {
	t, err := s.repomanager.AuthTokens(tx).Find(ctx, accountID, token)
	if err != nil {
		return nil, notFoundAs(err, common.KindUserNotFound, "Failed to get auth token")
	}
	return t, nil
}

// Touch records a use of t. Writes are skipped while the stored
// last-use date is younger than the touch interval.
func (s *AuthTokenStore) Touch(ctx context.Context, tx dbx.DBTX, t *models.SessionToken) error {
	now := s.now()
	if !t.Stale(now, s.touchInterval) {
		return nil
	}

	if err := s.repomanager.AuthTokens(tx).Touch(ctx, t.AccountID, t.Token, now); err != nil {
		return common.DatabaseError("Failed to update auth token", err)
	}
	t.LastUseDate = now
	return nil
}

// RevokeAllForAccount deletes every session of accountID.
func (s *AuthTokenStore) RevokeAllForAccount(ctx context.Context, tx dbx.DBTX, accountID int64) error {
	n, err := s.repomanager.AuthTokens(tx).DeleteAllForAccount(ctx, accountID)
	if err != nil {
		return common.DatabaseError("Failed to delete auth tokens", err)
	}
	if n > 0 {
		s.logger.Info(ctx, "auth tokens revoked", "account_id", accountID, "count", n)
	}
	return nil
}

// KnownDevice reports whether accountID holds a session from deviceString.
func (s *AuthTokenStore) KnownDevice(ctx context.Context, tx dbx.DBTX, accountID int64, deviceString string) (bool, error) {
	ok, err := s.repomanager.AuthTokens(tx).ExistsForDevice(ctx, accountID, deviceString)
	if err != nil {
		return false, common.DatabaseError("Failed to look up device", err)
	}
	return ok, nil
}
