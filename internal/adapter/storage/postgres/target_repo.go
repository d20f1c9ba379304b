package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"
)

const targetColumns = `id, name, url, event, method, headers, auth_enc, retry, rate_limit, signing, signing_version, status, created_at, updated_at`

// TargetRepo implements ports.TargetRepository. Auth credentials are stored
// encrypted; policies and headers as JSONB.
type TargetRepo struct {
	pool Pool
	enc  ports.EncryptionService
}

func NewTargetRepo(pool Pool, enc ports.EncryptionService) *TargetRepo {
	return &TargetRepo{pool: pool, enc: enc}
}

// Create inserts a new target.
func (r *TargetRepo) Create(ctx context.Context, t *domain.Target) error {
	row, err := r.encode(t)
	if err != nil {
		return err
	}
	query := `INSERT INTO targets (` + targetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.pool.Exec(ctx, query,
		t.ID, t.Name, t.URL, t.Event, t.Method,
		row.headers, row.auth, row.retry, row.rateLimit,
		t.Signing, t.SigningVersion, string(t.Status),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of a target.
func (r *TargetRepo) Update(ctx context.Context, t *domain.Target) error {
	row, err := r.encode(t)
	if err != nil {
		return err
	}
	query := `UPDATE targets
		SET name=$1, url=$2, event=$3, method=$4, headers=$5, auth_enc=$6, retry=$7, rate_limit=$8,
			signing=$9, signing_version=$10, status=$11, updated_at=$12
		WHERE id=$13`

	tag, err := r.pool.Exec(ctx, query,
		t.Name, t.URL, t.Event, t.Method,
		row.headers, row.auth, row.retry, row.rateLimit,
		t.Signing, t.SigningVersion, string(t.Status), t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update target %s: no rows affected", t.ID)
	}
	return nil
}

// ListLive returns active and suspended targets, oldest first.
func (r *TargetRepo) ListLive(ctx context.Context) ([]domain.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets
		WHERE status <> $1
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, string(domain.TargetStatusDisabled))
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []domain.Target
	for rows.Next() {
		var (
			t                         domain.Target
			headers, retry, rateLimit []byte
			auth                      *string
			status                    string
		)
		if err := rows.Scan(
			&t.ID, &t.Name, &t.URL, &t.Event, &t.Method,
			&headers, &auth, &retry, &rateLimit,
			&t.Signing, &t.SigningVersion, &status,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.Status = domain.TargetStatus(status)
		if err := r.decode(&t, headers, auth, retry, rateLimit); err != nil {
			return nil, fmt.Errorf("decode target %s: %w", t.ID, err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

type targetRow struct {
	headers   []byte
	auth      *string
	retry     []byte
	rateLimit []byte
}

func (r *TargetRepo) encode(t *domain.Target) (targetRow, error) {
	var row targetRow
	var err error
	if len(t.Headers) > 0 {
		if row.headers, err = json.Marshal(t.Headers); err != nil {
			return row, fmt.Errorf("encode headers: %w", err)
		}
	}
	if t.Retry != nil {
		if row.retry, err = json.Marshal(t.Retry); err != nil {
			return row, fmt.Errorf("encode retry policy: %w", err)
		}
	}
	if t.RateLimit != nil {
		if row.rateLimit, err = json.Marshal(t.RateLimit); err != nil {
			return row, fmt.Errorf("encode rate limit: %w", err)
		}
	}
	if spec := domain.SpecOf(t.Auth); spec != nil {
		raw, err := json.Marshal(spec)
		if err != nil {
			return row, fmt.Errorf("encode auth: %w", err)
		}
		sealed, err := r.enc.Encrypt(string(raw))
		if err != nil {
			return row, fmt.Errorf("seal auth: %w", err)
		}
		row.auth = &sealed
	}
	return row, nil
}

func (r *TargetRepo) decode(t *domain.Target, headers []byte, auth *string, retry, rateLimit []byte) error {
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &t.Headers); err != nil {
			return fmt.Errorf("headers: %w", err)
		}
	}
	if len(retry) > 0 {
		t.Retry = &domain.RetryPolicy{}
		if err := json.Unmarshal(retry, t.Retry); err != nil {
			return fmt.Errorf("retry policy: %w", err)
		}
	}
	if len(rateLimit) > 0 {
		t.RateLimit = &domain.RateLimitPolicy{}
		if err := json.Unmarshal(rateLimit, t.RateLimit); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	if auth != nil && *auth != "" {
		raw, err := r.enc.Decrypt(*auth)
		if err != nil {
			return fmt.Errorf("unseal auth: %w", err)
		}
		var spec domain.AuthSpec
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		if t.Auth, err = spec.Build(); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	return nil
}
