// Package authtokens declares the session token repository contract.
package authtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/server/models"
)

type Repository interface {
	// Insert stores token. It reports false without error when the token
	// value is already taken, so the caller can draw a new one.
	Insert(ctx context.Context, token *models.SessionToken) (bool, error)

	// Find returns common.ErrorNotFound when no such (account, token) exists.
	Find(ctx context.Context, accountID int64, token []byte) (*models.SessionToken, error)

	Touch(ctx context.Context, accountID int64, token []byte, at time.Time) error

	DeleteAllForAccount(ctx context.Context, accountID int64) (int64, error)

	// ExistsForDevice reports whether accountID ever signed in from deviceString.
	ExistsForDevice(ctx context.Context, accountID int64, deviceString string) (bool, error)
}
