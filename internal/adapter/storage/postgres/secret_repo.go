package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SecretRepo implements ports.SecretRepository. Values arrive already sealed.
type SecretRepo struct {
	pool Pool
}

func NewSecretRepo(pool Pool) *SecretRepo {
	return &SecretRepo{pool: pool}
}

// Save upserts the sealed secret for a target.
func (r *SecretRepo) Save(ctx context.Context, targetID string, sealed string) error {
	query := `INSERT INTO target_secrets (target_id, secret_enc, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (target_id) DO UPDATE SET secret_enc = EXCLUDED.secret_enc, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, targetID, sealed); err != nil {
		return fmt.Errorf("save secret: %w", err)
	}
	return nil
}

// Get returns "" when the target has no stored secret.
func (r *SecretRepo) Get(ctx context.Context, targetID string) (string, error) {
	var sealed string
	err := r.pool.QueryRow(ctx, `SELECT secret_enc FROM target_secrets WHERE target_id = $1`, targetID).Scan(&sealed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get secret: %w", err)
	}
	return sealed, nil
}

func (r *SecretRepo) Delete(ctx context.Context, targetID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM target_secrets WHERE target_id = $1`, targetID); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}
