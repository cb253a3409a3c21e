package events

import (
	"context"
	"sort"
	"sync"

	"github.com/homies-app/backend/internal/models"
)

type participantKey struct {
	eventID  int64
	helperID string
}

// MemoryStore is an in-process Store. Like the relational store it keys
// participants by (event, helper), but it does not check foreign keys.
type MemoryStore struct {
	mu           sync.RWMutex
	lastEventID  int64
	lastTypeID   int
	events       map[int64]models.Event
	types        map[int]models.EventType
	participants map[participantKey]models.EventParticipant
	userNames    map[string]string
}

// NewMemoryStore returns an empty store seeded with the given type names.
func NewMemoryStore(typeNames ...string) *MemoryStore {
	m := &MemoryStore{
		events:       make(map[int64]models.Event),
		types:        make(map[int]models.EventType),
		participants: make(map[participantKey]models.EventParticipant),
		userNames:    make(map[string]string),
	}
	for _, name := range typeNames {
		m.lastTypeID++
		m.types[m.lastTypeID] = models.EventType{ID: m.lastTypeID, Name: name}
	}
	return m
}

// SetUserName registers a display name for an organiser id.
func (m *MemoryStore) SetUserName(userID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userNames[userID] = name
}

func (m *MemoryStore) CreateEvent(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastEventID++
	e.ID = m.lastEventID
	if e.Version == 0 {
		e.Version = 1
	}
	m.events[e.ID] = *e
	return nil
}

func (m *MemoryStore) GetEvent(_ context.Context, id int64) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &e, nil
}

func (m *MemoryStore) GetEventDetails(_ context.Context, id int64) (*models.EventDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &models.EventDetails{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Start:       e.Start,
		End:         e.End,
		TypeID:      e.TypeID,
		Type:        m.types[e.TypeID].Name,
		OrganiserID: e.OrganiserID,
		Organiser:   m.displayName(e.OrganiserID),
		CreatedOn:   e.CreatedOn,
	}, nil
}

func (m *MemoryStore) ListEvents(_ context.Context) ([]models.EventInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]models.EventInfo, 0, len(m.events))
	for _, e := range m.sortedEvents() {
		list = append(list, models.EventInfo{
			ID:        e.ID,
			Name:      e.Name,
			Start:     e.Start,
			Type:      m.types[e.TypeID].Name,
			Organiser: m.displayName(e.OrganiserID),
		})
	}
	return list, nil
}

func (m *MemoryStore) UpdateEvent(_ context.Context, e *models.Event, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[e.ID]
	if !ok {
		return ErrEventNotFound
	}
	if cur.Version != expectedVersion {
		return ErrEditConflict
	}
	cur.Apply(*e.ToForm())
	cur.Version++
	m.events[e.ID] = cur
	e.Version = cur.Version
	return nil
}

func (m *MemoryStore) ListTypes(_ context.Context) ([]models.EventType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]models.EventType, 0, len(m.types))
	for _, t := range m.types {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *MemoryStore) CreateType(_ context.Context, name string) (*models.EventType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.types {
		if t.Name == name {
			return nil, ErrDuplicateType
		}
	}
	m.lastTypeID++
	t := models.EventType{ID: m.lastTypeID, Name: name}
	m.types[t.ID] = t
	return &t, nil
}

func (m *MemoryStore) AddParticipant(_ context.Context, p models.EventParticipant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := participantKey{p.EventID, p.HelperID}
	if _, ok := m.participants[key]; ok {
		return false, nil
	}
	m.participants[key] = p
	return true, nil
}

func (m *MemoryStore) RemoveParticipant(_ context.Context, eventID int64, helperID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := participantKey{eventID, helperID}
	if _, ok := m.participants[key]; !ok {
		return false, nil
	}
	delete(m.participants, key)
	return true, nil
}

func (m *MemoryStore) IsParticipant(_ context.Context, eventID int64, helperID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.participants[participantKey{eventID, helperID}]
	return ok, nil
}

func (m *MemoryStore) ListParticipants(_ context.Context, eventID int64) ([]models.EventParticipant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := []models.EventParticipant{}
	for k, p := range m.participants {
		if k.eventID == eventID {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].HelperID < list[j].HelperID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list, nil
}

func (m *MemoryStore) ListJoinedEvents(_ context.Context, helperID string) ([]models.JoinedEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := []models.JoinedEvent{}
	for _, e := range m.sortedEvents() {
		if _, ok := m.participants[participantKey{e.ID, helperID}]; !ok {
			continue
		}
		list = append(list, models.JoinedEvent{
			ID:    e.ID,
			Name:  e.Name,
			Start: e.Start,
			Type:  m.types[e.TypeID].Name,
		})
	}
	return list, nil
}

// sortedEvents orders by start then id. Caller holds the lock.
func (m *MemoryStore) sortedEvents() []models.Event {
	list := make([]models.Event, 0, len(m.events))
	for _, e := range m.events {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Start.Equal(list[j].Start) {
			return list[i].ID < list[j].ID
		}
		return list[i].Start.Before(list[j].Start)
	})
	return list
}

func (m *MemoryStore) displayName(userID string) string {
	if name := m.userNames[userID]; name != "" {
		return name
	}
	return userID
}
