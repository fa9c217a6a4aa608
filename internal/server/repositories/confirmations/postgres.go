// Package confirmations provides the PostgreSQL-backed confirmation repository.
package confirmations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
)

const confirmationColumns = `user_id, action, token, code_token, code, code_trials, used, date, redirect_url, device_string, ip_address`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, c *models.Confirmation) (bool, error) {
	query := `
		INSERT INTO confirmations (user_id, action, token, code_token, code, date, redirect_url, device_string, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		c.AccountID, string(c.Action), c.Token, c.CodeToken, int64(c.Code), c.Date, c.RedirectURL, c.DeviceString, c.IPAddress)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return rowsAffected(res, 1)
}

func (r *PostgresRepository) FindByCodeToken(ctx context.Context, accountID int64, action models.ConfirmationAction, codeToken []byte, code uint32) (*models.Confirmation, error) {
	query := `SELECT ` + confirmationColumns + `
		FROM confirmations
		WHERE user_id = $1 AND action = $2 AND code_token = $3 AND code = $4
	`
	return scanConfirmation(r.db.QueryRowContext(ctx, query, accountID, string(action), codeToken, int64(code)))
}

func (r *PostgresRepository) FindByToken(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (*models.Confirmation, error) {
	query := `SELECT ` + confirmationColumns + `
		FROM confirmations
		WHERE user_id = $1 AND action = $2 AND token = $3
	`
	return scanConfirmation(r.db.QueryRowContext(ctx, query, accountID, string(action), token))
}

func (r *PostgresRepository) LockByCodeToken(ctx context.Context, accountID int64, action models.ConfirmationAction, codeToken []byte) (*models.Confirmation, error) {
	query := `SELECT ` + confirmationColumns + `
		FROM confirmations
		WHERE user_id = $1 AND action = $2 AND code_token = $3
		FOR UPDATE
	`
	return scanConfirmation(r.db.QueryRowContext(ctx, query, accountID, string(action), codeToken))
}

func (r *PostgresRepository) LockByToken(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (*models.Confirmation, error) {
	query := `SELECT ` + confirmationColumns + `
		FROM confirmations
		WHERE user_id = $1 AND action = $2 AND token = $3
		FOR UPDATE
	`
	return scanConfirmation(r.db.QueryRowContext(ctx, query, accountID, string(action), token))
}

func (r *PostgresRepository) IncrementTrials(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (int, error) {
	query := `
		UPDATE confirmations SET code_trials = code_trials + 1
		WHERE user_id = $1 AND action = $2 AND token = $3
		RETURNING code_trials
	`
	var trials int
	if err := r.db.QueryRowContext(ctx, query, accountID, string(action), token).Scan(&trials); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return trials, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (bool, error) {
	query := `
		UPDATE confirmations SET used = TRUE
		WHERE user_id = $1 AND action = $2 AND token = $3 AND used = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, accountID, string(action), token)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return rowsAffected(res, 1)
}

func (r *PostgresRepository) InvalidateAll(ctx context.Context, accountID int64, action models.ConfirmationAction) (int64, error) {
	query := `
		UPDATE confirmations SET used = TRUE
		WHERE user_id = $1 AND action = $2 AND used = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, accountID, string(action))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count(res)
}

func (r *PostgresRepository) DeleteAllForAccount(ctx context.Context, accountID int64) (int64, error) {
	query := `DELETE FROM confirmations WHERE user_id = $1`

	res, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count(res)
}

func scanConfirmation(row *sql.Row) (*models.Confirmation, error) {
	c := &models.Confirmation{}
	var action string
	var code int64

	err := row.Scan(&c.AccountID, &action, &c.Token, &c.CodeToken, &code, &c.CodeTrials, &c.Used,
		&c.Date, &c.RedirectURL, &c.DeviceString, &c.IPAddress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	c.Action = models.ConfirmationAction(action)
	c.Code = uint32(code)
	return c, nil
}

func rowsAffected(res sql.Result, want int64) (bool, error) {
	n, err := count(res)
	if err != nil {
		return false, err
	}
	return n == want, nil
}

func count(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
