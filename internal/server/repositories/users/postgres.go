// Package users provides the PostgreSQL-backed account repository.
package users

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

const accountColumns = `id, name, email, password_hash, creation_date, status, storage_count_ko, storage_limit_mo`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (int64, error) {
	query :=
		`INSERT INTO users (name, email, password_hash, creation_date, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		account.Name, account.Email, account.PasswordHash, account.CreationDate, string(account.Status)).Scan(&id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsUniqueViolation(err, "") {
			return 0, common.ErrorAlreadyExists
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	account.ID = id
	return id, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateRegistration(ctx context.Context, id int64, name, passwordHash string, creationDate time.Time) error {
	query :=
		`UPDATE users SET name = $2, password_hash = $3, creation_date = $4
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, name, passwordHash, creationDate)
	return affectedOne(res, err)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error {
	query := `UPDATE users SET status = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, string(status))
	return affectedOne(res, err)
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	var status string

	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreationDate, &status, &a.StorageCountKo, &a.StorageLimitMo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.Status = models.AccountStatus(status)
	return a, nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
