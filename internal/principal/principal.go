// Package principal define el modelo de operador de plataforma y el puerto
// de directorio que usan login, MFA y OAuth.
package principal

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound indica que el principal no existe.
	ErrNotFound = errors.New("principal: not found")

	// ErrConflict indica email o sso subject duplicado.
	ErrConflict = errors.New("principal: conflict")
)

// Status del principal.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Principal es un operador del control plane.
type Principal struct {
	ID            string
	Email         string
	PasswordHash  *string // nil para cuentas solo-SSO
	Roles         []string
	Permissions   []string
	MFAEnabled    bool
	TOTPSecretEnc string   // secretbox; vacío si nunca hubo setup
	RecoveryCodes []string // hashes, nunca el código en claro
	IPAllowlist   []string
	SSOSubject    *string // "<provider>|<sub>"
	Status        Status
	CreatedAt     time.Time
}

// Disabled reporta si la cuenta no puede autenticarse.
func (p *Principal) Disabled() bool { return p.Status == StatusDisabled }

// HasPassword reporta si la cuenta tiene credencial local.
func (p *Principal) HasPassword() bool { return p.PasswordHash != nil && *p.PasswordHash != "" }

// CreateInput son los datos para alta (JIT o bootstrap).
type CreateInput struct {
	Email        string
	PasswordHash *string
	Roles        []string
	Permissions  []string
	SSOSubject   *string
}

// Directory es el puerto de persistencia de principals.
type Directory interface {
	// ByID retorna ErrNotFound si no existe.
	ByID(ctx context.Context, id string) (*Principal, error)

	// ByEmail busca por email normalizado.
	ByEmail(ctx context.Context, email string) (*Principal, error)

	// BySSOSubject busca por "<provider>|<sub>".
	BySSOSubject(ctx context.Context, subject string) (*Principal, error)

	Create(ctx context.Context, in CreateInput) (*Principal, error)

	// BindSSOSubject asocia un subject externo a una cuenta existente.
	BindSSOSubject(ctx context.Context, id, subject string) error

	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// SetTOTPSecret guarda el secreto cifrado sin habilitar MFA.
	SetTOTPSecret(ctx context.Context, id, secretEnc string) error

	// EnableMFA habilita MFA y reemplaza los recovery codes.
	EnableMFA(ctx context.Context, id string, recoveryHashes []string) error

	// DisableMFA borra secreto y recovery codes.
	DisableMFA(ctx context.Context, id string) error

	// ConsumeRecoveryCode remueve atómicamente el hash; true si existía.
	ConsumeRecoveryCode(ctx context.Context, id, hash string) (bool, error)

	ReplaceRecoveryCodes(ctx context.Context, id string, hashes []string) error
}

// NormalizeEmail aplica trim + lowercase.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SSOSubject arma la clave de vínculo externo.
func SSOSubject(provider, sub string) string {
	return provider + "|" + sub
}
