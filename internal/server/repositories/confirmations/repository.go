// Package confirmations declares the repository for one-time confirmation
// records (emailed link token plus code token and short code).
package confirmations

import (
	"context"

	"github.com/dmitrijs2005/pxauth/internal/server/models"
)

type Repository interface {
	// Insert stores c with used=false and no trials. It reports false without
	// error when token or code token collides with an existing row.
	Insert(ctx context.Context, c *models.Confirmation) (bool, error)

	// FindByCodeToken and FindByToken are exact lookups with no side effects.
	// Both return common.ErrorNotFound when nothing matches.
	FindByCodeToken(ctx context.Context, accountID int64, action models.ConfirmationAction, codeToken []byte, code uint32) (*models.Confirmation, error)
	FindByToken(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (*models.Confirmation, error)

	// LockByCodeToken and LockByToken load the row FOR UPDATE so concurrent
	// checks of the same confirmation serialize.
	LockByCodeToken(ctx context.Context, accountID int64, action models.ConfirmationAction, codeToken []byte) (*models.Confirmation, error)
	LockByToken(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (*models.Confirmation, error)

	// IncrementTrials adds one wrong attempt and returns the new count.
	IncrementTrials(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (int, error)

	// MarkUsed flips used to true. It reports false if the row was already used.
	MarkUsed(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (bool, error)

	// InvalidateAll marks every unused confirmation of (account, action) used.
	InvalidateAll(ctx context.Context, accountID int64, action models.ConfirmationAction) (int64, error)

	DeleteAllForAccount(ctx context.Context, accountID int64) (int64, error)
}
