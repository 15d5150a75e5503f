package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dropDatabas3/cpauth/internal/observability/logger"
	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/security/password"
	"github.com/dropDatabas3/cpauth/internal/util"
)

// DefaultAdminRoles se asignan al primer operador.
var DefaultAdminRoles = []string{"platform_admin"}

// AdminBootstrapConfig configura la creación del primer operador de plataforma.
type AdminBootstrapConfig struct {
	Directory principal.Directory
	Policy    password.Policy
	Hashing   password.Params

	SkipPrompt    bool   // sin prompts (service con env, tests)
	AdminEmail    string // pre-cargado (opcional)
	AdminPassword string // pre-cargado (opcional)

	// In/Out para el prompt; default stdin/stdout.
	In  io.Reader
	Out io.Writer
}

// ErrInvalidInput credenciales de bootstrap vacías o que no cumplen la política.
var ErrInvalidInput = errors.New("bootstrap: invalid admin credentials")

// CheckAndCreateAdmin crea el operador si el email no existe todavía. Devuelve
// created=false si ya estaba; nunca pisa un principal existente.
func CheckAndCreateAdmin(ctx context.Context, cfg AdminBootstrapConfig) (created bool, err error) {
	log := logger.From(ctx).With(logger.Layer("bootstrap"), logger.Op("CheckAndCreateAdmin"))
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Policy.MinLength == 0 {
		cfg.Policy = password.DefaultPolicy
	}
	if cfg.Hashing.KeyLen == 0 {
		cfg.Hashing = password.Default
	}

	email, plain := cfg.AdminEmail, cfg.AdminPassword
	if !cfg.SkipPrompt && (email == "" || plain == "") {
		email, plain, err = promptAdminCredentials(cfg.In, cfg.Out, email)
		if err != nil {
			return false, err
		}
	}
	email = principal.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") || plain == "" {
		return false, fmt.Errorf("%w: email y password son requeridos", ErrInvalidInput)
	}

	// 1. ¿ya existe?
	if _, err := cfg.Directory.ByEmail(ctx, email); err == nil {
		log.Info("admin already present, skipping bootstrap", logger.String("email", util.MaskEmail(email)))
		return false, nil
	} else if !errors.Is(err, principal.ErrNotFound) {
		return false, fmt.Errorf("check existing admin: %w", err)
	}

	// 2. política
	if ok, reasons := cfg.Policy.Validate(plain); !ok {
		return false, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(reasons, ", "))
	}

	// 3. hash + alta
	hash, err := password.Hash(cfg.Hashing, plain)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	p, err := cfg.Directory.Create(ctx, principal.CreateInput{
		Email:        email,
		PasswordHash: &hash,
		Roles:        DefaultAdminRoles,
	})
	if err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	log.Info("admin created", logger.PrincipalID(p.ID), logger.String("email", util.MaskEmail(email)))
	return true, nil
}

// promptAdminCredentials pide email y password. Si In es una terminal el password
// no se muestra; con stdin redirigido se lee una línea.
func promptAdminCredentials(in io.Reader, out io.Writer, email string) (string, string, error) {
	reader := bufio.NewReader(in)

	if email == "" {
		fmt.Fprint(out, "Admin email: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", "", err
		}
		email = strings.TrimSpace(line)
	}

	fmt.Fprint(out, "Admin password: ")
	plain, err := readSecret(in, reader)
	fmt.Fprintln(out)
	if err != nil {
		return "", "", err
	}

	fmt.Fprint(out, "Confirm password: ")
	confirm, err := readSecret(in, reader)
	fmt.Fprintln(out)
	if err != nil {
		return "", "", err
	}
	if plain != confirm {
		return "", "", fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}
	return email, plain, nil
}

// ReadSecret lee un secreto sin eco si in es una terminal. Lo usa también el CLI.
func ReadSecret(in io.Reader) (string, error) {
	return readSecret(in, bufio.NewReader(in))
}

func readSecret(in io.Reader, reader *bufio.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
