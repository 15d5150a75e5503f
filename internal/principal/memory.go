package principal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory es un Directory en proceso. Se usa en dev y en tests.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]*Principal
	byEmail map[string]string
	bySSO   map[string]string
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byID:    map[string]*Principal{},
		byEmail: map[string]string{},
		bySSO:   map[string]string{},
		now:     time.Now,
	}
}

// Put inserta o reemplaza un principal completo (seed / tests).
func (m *Memory) Put(p *Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := clone(p)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	c.Email = NormalizeEmail(c.Email)
	m.byID[c.ID] = c
	m.byEmail[c.Email] = c.ID
	if c.SSOSubject != nil {
		m.bySSO[*c.SSOSubject] = c.ID
	}
}

func (m *Memory) get(id string) (*Principal, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ByID(_ context.Context, id string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return clone(p), nil
}

func (m *Memory) ByEmail(_ context.Context, email string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m.byID[id]), nil
}

func (m *Memory) BySSOSubject(_ context.Context, subject string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySSO[subject]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m.byID[id]), nil
}

func (m *Memory) Create(_ context.Context, in CreateInput) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := NormalizeEmail(in.Email)
	if _, dup := m.byEmail[email]; dup {
		return nil, ErrConflict
	}
	if in.SSOSubject != nil {
		if _, dup := m.bySSO[*in.SSOSubject]; dup {
			return nil, ErrConflict
		}
	}
	p := &Principal{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		Roles:        append([]string(nil), in.Roles...),
		Permissions:  append([]string(nil), in.Permissions...),
		SSOSubject:   in.SSOSubject,
		Status:       StatusActive,
		CreatedAt:    m.now().UTC(),
	}
	m.byID[p.ID] = p
	m.byEmail[email] = p.ID
	if p.SSOSubject != nil {
		m.bySSO[*p.SSOSubject] = p.ID
	}
	return clone(p), nil
}

func (m *Memory) BindSSOSubject(_ context.Context, id, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(id)
	if err != nil {
		return err
	}
	if owner, ok := m.bySSO[subject]; ok && owner != id {
		return ErrConflict
	}
	if p.SSOSubject != nil {
		delete(m.bySSO, *p.SSOSubject)
	}
	s := subject
	p.SSOSubject = &s
	m.bySSO[subject] = id
	return nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(id)
	if err != nil {
		return err
	}
	h := hash
	p.PasswordHash = &h
	return nil
}

func (m *Memory) SetTOTPSecret(_ context.Context, id, secretEnc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(id)
	if err != nil {
		return err
	}
	p.TOTPSecretEnc = secretEnc
	return nil
}

func (m *Memory) EnableMFA(_ context.Context, id string, recoveryHashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(id)
	if err != nil {
		return err
	}
	p.MFAEnabled = true
	p.RecoveryCodes = append([]string(nil), recoveryHashes...)
	return nil
}

func (m *Memory) DisableMFA(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(id)
	if err != nil {
		return err
	}
	p.MFAEnabled = false
	p.TOTPSecretEnc = ""
	p.RecoveryCodes = nil
	return nil
}

func (m *Memory) ConsumeRecoveryCode(_ context.Context, id, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(id)
	if err != nil {
		return false, err
	}
	for i, h := range p.RecoveryCodes {
		if h == hash {
			p.RecoveryCodes = append(p.RecoveryCodes[:i:i], p.RecoveryCodes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ReplaceRecoveryCodes(_ context.Context, id string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(id)
	if err != nil {
		return err
	}
	p.RecoveryCodes = append([]string(nil), hashes...)
	return nil
}

func clone(p *Principal) *Principal {
	c := *p
	c.Roles = append([]string(nil), p.Roles...)
	c.Permissions = append([]string(nil), p.Permissions...)
	c.RecoveryCodes = append([]string(nil), p.RecoveryCodes...)
	c.IPAllowlist = append([]string(nil), p.IPAllowlist...)
	if p.PasswordHash != nil {
		h := *p.PasswordHash
		c.PasswordHash = &h
	}
	if p.SSOSubject != nil {
		s := *p.SSOSubject
		c.SSOSubject = &s
	}
	return &c
}
