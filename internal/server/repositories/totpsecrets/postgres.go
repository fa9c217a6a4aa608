package totpsecrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, accountID int64) (*models.TotpSecret, error) {
	query := `SELECT user_id, creation_date, secret FROM totp_secrets WHERE user_id = $1`

	s := &models.TotpSecret{}
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&s.AccountID, &s.CreationDate, &s.Secret); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, s *models.TotpSecret) error {
	query := `
		INSERT INTO totp_secrets (user_id, creation_date, secret)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET creation_date = EXCLUDED.creation_date, secret = EXCLUDED.secret
	`
	if _, err := r.db.ExecContext(ctx, query, s.AccountID, s.CreationDate, s.Secret); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
