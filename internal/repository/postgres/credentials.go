package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okq550/muslim-compnion-sub002/internal/core/domain"
	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
	"github.com/okq550/muslim-compnion-sub002/internal/infra/security"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialRepository verifies identity secrets against Argon2 hashes
// stored in PostgreSQL.
type CredentialRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCredentialRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewCredentialRepository(exec pgExecutor) *CredentialRepository {
	return &CredentialRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Verify reports whether the secret matches the stored hash for the
// identity. An unknown or inactive identity is an ordinary mismatch, not an
// error, so callers cannot distinguish the two cases by behavior.
func (r *CredentialRepository) Verify(ctx context.Context, identity, secret string) (bool, error) {
	id := domain.NormalizeIdentity(identity)
	if id == "" || secret == "" {
		return false, nil
	}

	stmt, args, err := r.builder.
		Select("password_hash", "is_active").
		From("auth.credentials").
		Where(squirrel.Eq{"identity": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select credential sql: %w", err)
	}

	var (
		passwordHash string
		isActive     bool
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&passwordHash, &isActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select credential: %w", err)
	}

	if !isActive {
		return false, nil
	}

	ok, err := security.VerifyPassword(secret, passwordHash)
	if err != nil {
		return false, fmt.Errorf("verify password hash: %w", err)
	}
	return ok, nil
}

// Store upserts the Argon2 hash for an identity. Used by provisioning and
// by tests that seed credentials.
func (r *CredentialRepository) Store(ctx context.Context, identity, secret string) error {
	id := domain.NormalizeIdentity(identity)
	if id == "" {
		return errors.New("identity is required")
	}

	hash, err := security.HashPassword(secret)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	stmt, args, err := r.builder.
		Insert("auth.credentials").
		Columns("identity", "password_hash", "is_active").
		Values(id, hash, true).
		Suffix("ON CONFLICT (identity) DO UPDATE SET password_hash = EXCLUDED.password_hash").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert credential sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}

	return nil
}

var _ port.CredentialVerifier = (*CredentialRepository)(nil)
