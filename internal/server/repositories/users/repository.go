// Package users declares the account repository contract.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/server/models"
)

type Repository interface {
	// Create inserts account and returns its new id. An email that is already
	// taken yields common.ErrorAlreadyExists.
	Create(ctx context.Context, account *models.Account) (int64, error)

	// GetByEmail and GetByID return common.ErrorNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)

	// UpdateRegistration overwrites the sign-up fields of an abandoned
	// registration.
	UpdateRegistration(ctx context.Context, id int64, name, passwordHash string, creationDate time.Time) error

	UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error
}
