package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memAccount struct {
	Account
	hash []byte
}

// Memory keeps accounts in process. Used by tests and DOC_BACKEND=memory.
type Memory struct {
	mu      sync.Mutex
	byUID   map[string]*memAccount
	byEmail map[string]string
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byUID:   make(map[string]*memAccount),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) CreateUserAccount(ctx context.Context, email, password string, profile Profile) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[email]; exists {
		return nil, ErrEmailExists
	}
	acct := &memAccount{
		Account: Account{UID: uuid.New().String(), Email: email, Profile: profile, CreatedAt: m.now()},
		hash:    hash,
	}
	m.byUID[acct.UID] = acct
	m.byEmail[email] = acct.UID
	out := acct.Account
	return &out, nil
}

func (m *Memory) DeleteAccount(ctx context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.byUID[uid]
	if !ok {
		return ErrNotFound
	}
	delete(m.byEmail, acct.Email)
	delete(m.byUID, uid)
	return nil
}

func (m *Memory) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	m.mu.Lock()
	uid, ok := m.byEmail[normalizeEmail(email)]
	var acct *memAccount
	if ok {
		acct = m.byUID[uid]
	}
	m.mu.Unlock()
	if acct == nil {
		return nil, ErrInvalidCredentials
	}
	if err := checkPassword(acct.hash, password); err != nil {
		return nil, err
	}
	out := acct.Account
	return &out, nil
}

// Count returns how many accounts exist.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUID)
}
