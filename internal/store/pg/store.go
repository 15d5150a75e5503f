// Package pg implementa principal.Directory sobre PostgreSQL con pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/cpauth/internal/principal"
)

// Config de pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

type Store struct{ pool *pgxpool.Pool }

var _ principal.Directory = (*Store)(nil)

func New(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	pcfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pcfg.MinConns = 2
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping para /readyz.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

const principalColumns = `id, email, password_hash, roles, permissions, mfa_enabled,
	COALESCE(totp_secret_enc, ''), recovery_codes, ip_allowlist, sso_subject, status, created_at`

func scanPrincipal(row pgx.Row) (*principal.Principal, error) {
	var p principal.Principal
	var status string
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.Roles, &p.Permissions, &p.MFAEnabled,
		&p.TOTPSecretEnc, &p.RecoveryCodes, &p.IPAllowlist, &p.SSOSubject, &status, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, principal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan principal: %w", err)
	}
	p.Status = principal.Status(status)
	return &p, nil
}

func (s *Store) ByID(ctx context.Context, id string) (*principal.Principal, error) {
	return scanPrincipal(s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM platform_principal WHERE id = $1`, id))
}

func (s *Store) ByEmail(ctx context.Context, email string) (*principal.Principal, error) {
	return scanPrincipal(s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM platform_principal WHERE email = $1`, principal.NormalizeEmail(email)))
}

func (s *Store) BySSOSubject(ctx context.Context, subject string) (*principal.Principal, error) {
	return scanPrincipal(s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM platform_principal WHERE sso_subject = $1`, subject))
}

func (s *Store) Create(ctx context.Context, in principal.CreateInput) (*principal.Principal, error) {
	roles := in.Roles
	if roles == nil {
		roles = []string{}
	}
	perms := in.Permissions
	if perms == nil {
		perms = []string{}
	}
	p, err := scanPrincipal(s.pool.QueryRow(ctx, `
		INSERT INTO platform_principal (email, password_hash, roles, permissions, sso_subject)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+principalColumns,
		principal.NormalizeEmail(in.Email), in.PasswordHash, roles, perms, in.SSOSubject))
	if isUniqueViolation(err) {
		return nil, principal.ErrConflict
	}
	return p, err
}

func (s *Store) BindSSOSubject(ctx context.Context, id, subject string) error {
	err := s.execOne(ctx, `UPDATE platform_principal SET sso_subject = $2, updated_at = now() WHERE id = $1`, id, subject)
	if isUniqueViolation(err) {
		return principal.ErrConflict
	}
	return err
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, `UPDATE platform_principal SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

func (s *Store) SetTOTPSecret(ctx context.Context, id, secretEnc string) error {
	return s.execOne(ctx, `UPDATE platform_principal SET totp_secret_enc = $2, updated_at = now() WHERE id = $1`, id, secretEnc)
}

func (s *Store) EnableMFA(ctx context.Context, id string, recoveryHashes []string) error {
	return s.execOne(ctx, `
		UPDATE platform_principal
		SET mfa_enabled = true, recovery_codes = $2, updated_at = now()
		WHERE id = $1`, id, recoveryHashes)
}

func (s *Store) DisableMFA(ctx context.Context, id string) error {
	return s.execOne(ctx, `
		UPDATE platform_principal
		SET mfa_enabled = false, totp_secret_enc = NULL, recovery_codes = '{}', updated_at = now()
		WHERE id = $1`, id)
}

// ConsumeRecoveryCode: el WHERE con = ANY hace que solo un UPDATE concurrente gane.
func (s *Store) ConsumeRecoveryCode(ctx context.Context, id, hash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE platform_principal
		SET recovery_codes = array_remove(recovery_codes, $2), updated_at = now()
		WHERE id = $1 AND $2 = ANY(recovery_codes)`, id, hash)
	if err != nil {
		return false, fmt.Errorf("pg: consume recovery code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReplaceRecoveryCodes(ctx context.Context, id string, hashes []string) error {
	return s.execOne(ctx, `UPDATE platform_principal SET recovery_codes = $2, updated_at = now() WHERE id = $1`, id, hashes)
}

func (s *Store) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return principal.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
