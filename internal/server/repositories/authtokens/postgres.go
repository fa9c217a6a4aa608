// Package authtokens provides a PostgreSQL-backed repository for the opaque
// session tokens handed out at sign-in.
package authtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert relies on ON CONFLICT DO NOTHING rather than a unique violation: a
// failed statement would abort the surrounding transaction in PostgreSQL.
func (r *PostgresRepository) Insert(ctx context.Context, t *models.SessionToken) (bool, error) {
	query := `
		INSERT INTO auth_tokens (user_id, token, creation_date, last_use_date, device_string, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		t.AccountID, t.Token, t.CreationDate, t.LastUseDate, t.DeviceString, t.IPAddress)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// Find returns the token row or common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, accountID int64, token []byte) (*models.SessionToken, error) {
	query := `
		SELECT user_id, token, creation_date, last_use_date, device_string, ip_address
		FROM auth_tokens
		WHERE user_id = $1 AND token = $2
	`
	t := &models.SessionToken{}
	err := r.db.QueryRowContext(ctx, query, accountID, token).
		Scan(&t.AccountID, &t.Token, &t.CreationDate, &t.LastUseDate, &t.DeviceString, &t.IPAddress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// Touch sets last_use_date. A token revoked in the meantime is not an error.
func (r *PostgresRepository) Touch(ctx context.Context, accountID int64, token []byte, at time.Time) error {
	query := `
		UPDATE auth_tokens SET last_use_date = $3
		WHERE user_id = $1 AND token = $2
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, token, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAllForAccount(ctx context.Context, accountID int64) (int64, error) {
	query := `DELETE FROM auth_tokens WHERE user_id = $1`

	res, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ExistsForDevice(ctx context.Context, accountID int64, deviceString string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM auth_tokens WHERE user_id = $1 AND device_string = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, accountID, deviceString).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}
