package pg

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/migrations"
)

func TestParseMigrationsOrdersAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_second.sql": {Data: []byte("SELECT 2;")},
		"m/0001_first.sql":  {Data: []byte("SELECT 1;")},
		"m/README.md":       {Data: []byte("x")},
	}
	migs, err := parseMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	require.Equal(t, 1, migs[0].version)
	require.Equal(t, "first", migs[0].name)
	require.Equal(t, 2, migs[1].version)
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	migs, err := parseMigrations(migrations.PostgresFS, migrations.PostgresDir)
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	require.Equal(t, 1, migs[0].version)
}

// Requiere CPAUTH_TEST_PG_DSN apuntando a una base descartable.
func TestStoreAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("CPAUTH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CPAUTH_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Config{DSN: dsn})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Migrate(ctx, migrations.PostgresFS, migrations.PostgresDir)
	require.NoError(t, err)
	_, _ = s.pool.Exec(ctx, `DELETE FROM platform_principal WHERE email = 'pgtest@example.com'`)

	p, err := s.Create(ctx, principal.CreateInput{Email: "PGTest@example.com", Roles: []string{"viewer"}})
	require.NoError(t, err)
	require.Equal(t, "pgtest@example.com", p.Email)

	_, err = s.Create(ctx, principal.CreateInput{Email: "pgtest@example.com"})
	require.ErrorIs(t, err, principal.ErrConflict)

	require.NoError(t, s.EnableMFA(ctx, p.ID, []string{"a", "b"}))
	ok, err := s.ConsumeRecoveryCode(ctx, p.ID, "a")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.ConsumeRecoveryCode(ctx, p.ID, "a")
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.ByID(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.MFAEnabled)
	require.Equal(t, []string{"b"}, got.RecoveryCodes)

	require.ErrorIs(t, s.UpdatePasswordHash(ctx, "00000000-0000-0000-0000-000000000000", "x"), principal.ErrNotFound)
}
