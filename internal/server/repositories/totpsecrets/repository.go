// Package totpsecrets stores the per-account TOTP shared secrets.
package totpsecrets

import (
	"context"

	"github.com/dmitrijs2005/pxauth/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound for accounts without TOTP.
	Get(ctx context.Context, accountID int64) (*models.TotpSecret, error)
	// Upsert creates or replaces the account's secret.
	Upsert(ctx context.Context, secret *models.TotpSecret) error
}
