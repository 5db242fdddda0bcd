package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore"
)

// Memory is a map-backed directory. Emails match case-insensitively.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]authcore.Account
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]authcore.Account)}
}

// Put inserts or replaces a by ID.
func (m *Memory) Put(a authcore.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

// Get returns the stored copy of the account with id.
func (m *Memory) Get(id string) (authcore.Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	return a, ok
}

func (m *Memory) GetAccountByEmail(_ context.Context, email string) (authcore.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return authcore.Account{}, authcore.ErrAccountNotFound
}

func (m *Memory) GetAccountByUsername(_ context.Context, username string) (authcore.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return authcore.Account{}, authcore.ErrAccountNotFound
}

func (m *Memory) UpdateLastLogin(_ context.Context, accountID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	t := at
	a.LastLogin = &t
	m.accounts[accountID] = a
	return nil
}

func (m *Memory) UpdateFailedAttempts(_ context.Context, accountID string, count int, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	a.FailedAttempts = count
	if lockedUntil != nil {
		t := *lockedUntil
		a.LockedUntil = &t
	} else {
		a.LockedUntil = nil
	}
	m.accounts[accountID] = a
	return nil
}
