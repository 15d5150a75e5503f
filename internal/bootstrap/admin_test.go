package bootstrap

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/security/password"
)

// params livianos para que argon2 no domine el test
var fastHash = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func TestCheckAndCreateAdmin_NonInteractive(t *testing.T) {
	dir := principal.NewMemory()
	ctx := context.Background()
	cfg := AdminBootstrapConfig{
		Directory:     dir,
		Hashing:       fastHash,
		SkipPrompt:    true,
		AdminEmail:    "Root@Example.com",
		AdminPassword: "Bootstrap-Passw0rd",
	}

	created, err := CheckAndCreateAdmin(ctx, cfg)
	require.NoError(t, err)
	require.True(t, created)

	p, err := dir.ByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	require.Equal(t, DefaultAdminRoles, p.Roles)
	require.True(t, p.HasPassword())
	require.True(t, password.Verify("Bootstrap-Passw0rd", *p.PasswordHash))

	// segunda corrida: no pisa
	created, err = CheckAndCreateAdmin(ctx, cfg)
	require.NoError(t, err)
	require.False(t, created)
}

func TestCheckAndCreateAdmin_RejectsWeakPassword(t *testing.T) {
	_, err := CheckAndCreateAdmin(context.Background(), AdminBootstrapConfig{
		Directory:     principal.NewMemory(),
		Hashing:       fastHash,
		SkipPrompt:    true,
		AdminEmail:    "root@example.com",
		AdminPassword: "short",
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Contains(t, err.Error(), "too_short")
}

func TestCheckAndCreateAdmin_MissingCredentials(t *testing.T) {
	_, err := CheckAndCreateAdmin(context.Background(), AdminBootstrapConfig{
		Directory:  principal.NewMemory(),
		SkipPrompt: true,
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckAndCreateAdmin_Prompt(t *testing.T) {
	dir := principal.NewMemory()
	var out bytes.Buffer

	created, err := CheckAndCreateAdmin(context.Background(), AdminBootstrapConfig{
		Directory: dir,
		Hashing:   fastHash,
		In:        strings.NewReader("ops@example.com\nBootstrap-Passw0rd\nBootstrap-Passw0rd\n"),
		Out:       &out,
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Contains(t, out.String(), "Admin email:")
	require.NotContains(t, out.String(), "Bootstrap-Passw0rd")

	_, err = dir.ByEmail(context.Background(), "ops@example.com")
	require.NoError(t, err)
}

func TestCheckAndCreateAdmin_PromptMismatch(t *testing.T) {
	_, err := CheckAndCreateAdmin(context.Background(), AdminBootstrapConfig{
		Directory: principal.NewMemory(),
		Hashing:   fastHash,
		In:        strings.NewReader("ops@example.com\nBootstrap-Passw0rd\nother\n"),
		Out:       &bytes.Buffer{},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}
