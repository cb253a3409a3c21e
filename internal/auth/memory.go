package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homies-app/backend/internal/models"
)

// MemoryUserStore keeps accounts in process for STORE_DRIVER=memory.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
	// OnCreate, when set, is called after each successful Create.
	OnCreate func(u models.User)
}

// NewMemoryUserStore creates an empty user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (m *MemoryUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := m.byID[id]
	return &u, nil
}

func (m *MemoryUserStore) Create(_ context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error) {
	m.mu.Lock()
	key := strings.ToLower(email)
	if _, ok := m.byEmail[key]; ok {
		m.mu.Unlock()
		return nil, ErrEmailTaken
	}
	now := time.Now().UTC()
	u := models.User{
		ID:        uuid.New(),
		Email:     key,
		Password:  passwordHash,
		FullName:  fullName,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.byID[u.ID] = u
	m.byEmail[key] = u.ID
	hook := m.OnCreate
	m.mu.Unlock()

	if hook != nil {
		hook(u)
	}
	return &u, nil
}
