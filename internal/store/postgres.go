package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hexrift/licensor/internal/model"
)

// DB is the subset of pgxpool.Pool the Postgres store needs. Declared here so
// tests can substitute a mock.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on top of a pgx connection pool. The version
// column makes CompareAndUpdate a single conditional UPDATE; no transaction
// is needed for the engine's read-modify-write cycle.
type Postgres struct {
	db DB
}

// NewPostgres creates a Postgres-backed license store.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

const licenseColumns = `id, key, product, owner_ref, is_active, is_banned, ban_reason,
	expires_at, hwid, hwid_bound_at, last_hwid_reset, hwid_reset_count,
	max_hwid_resets, last_verified_at, created_at, updated_at, version`

func (s *Postgres) FindByKey(ctx context.Context, key string) (*model.License, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE key = $1`,
		model.CanonicalKey(key),
	)
	return scanLicense(row)
}

func (s *Postgres) FindByID(ctx context.Context, id string) (*model.License, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id,
	)
	return scanLicense(row)
}

func (s *Postgres) Insert(ctx context.Context, lic *model.License) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO licenses (id, key, product, owner_ref, is_active, is_banned, ban_reason,
			expires_at, hwid, hwid_bound_at, last_hwid_reset, hwid_reset_count,
			max_hwid_resets, last_verified_at, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		lic.ID, model.CanonicalKey(lic.Key), lic.Product, lic.OwnerRef, lic.IsActive,
		lic.IsBanned, lic.BanReason, lic.ExpiresAt, lic.HWID, lic.HWIDBoundAt,
		lic.LastHWIDReset, lic.HWIDResetCount, lic.MaxHWIDResets, lic.LastVerifiedAt,
		lic.CreatedAt, lic.UpdatedAt, lic.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

func (s *Postgres) CompareAndUpdate(ctx context.Context, lic *model.License) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx,
		`UPDATE licenses SET
			product = $3, owner_ref = $4, is_active = $5, is_banned = $6, ban_reason = $7,
			expires_at = $8, hwid = $9, hwid_bound_at = $10, last_hwid_reset = $11,
			hwid_reset_count = $12, max_hwid_resets = $13, last_verified_at = $14,
			updated_at = $15, version = version + 1
		 WHERE id = $1 AND version = $2`,
		lic.ID, lic.Version, lic.Product, lic.OwnerRef, lic.IsActive, lic.IsBanned,
		lic.BanReason, lic.ExpiresAt, lic.HWID, lic.HWIDBoundAt, lic.LastHWIDReset,
		lic.HWIDResetCount, lic.MaxHWIDResets, lic.LastVerifiedAt, now,
	)
	if err != nil {
		return fmt.Errorf("update license %s: %w", lic.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a concurrent writer from a deleted record.
		var exists bool
		err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM licenses WHERE id = $1)`, lic.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check license %s: %w", lic.ID, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	lic.Version++
	lic.UpdatedAt = now
	return nil
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete license %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, filter ListFilter) ([]model.License, bool, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Product != "" {
		query += fmt.Sprintf(` AND product = $%d`, argIdx)
		args = append(args, filter.Product)
		argIdx++
	}
	if filter.OwnerRef != "" {
		query += fmt.Sprintf(` AND owner_ref = $%d`, argIdx)
		args = append(args, filter.OwnerRef)
		argIdx++
	}
	if filter.Cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, filter.Cursor)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []model.License
	for rows.Next() {
		lic, err := scanLicenseRow(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, *lic)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate licenses: %w", err)
	}

	hasMore := len(licenses) > limit
	if hasMore {
		licenses = licenses[:limit]
	}
	return licenses, hasMore, nil
}

func scanLicense(row pgx.Row) (*model.License, error) {
	lic, err := scanLicenseRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get license: %w", err)
	}
	return lic, nil
}

func scanLicenseRow(row interface{ Scan(dest ...any) error }) (*model.License, error) {
	var lic model.License
	err := row.Scan(
		&lic.ID, &lic.Key, &lic.Product, &lic.OwnerRef, &lic.IsActive,
		&lic.IsBanned, &lic.BanReason, &lic.ExpiresAt, &lic.HWID, &lic.HWIDBoundAt,
		&lic.LastHWIDReset, &lic.HWIDResetCount, &lic.MaxHWIDResets,
		&lic.LastVerifiedAt, &lic.CreatedAt, &lic.UpdatedAt, &lic.Version,
	)
	if err != nil {
		return nil, err
	}
	return &lic, nil
}
