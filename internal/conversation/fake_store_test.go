package conversation

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/domain"
	"github.com/shaiso/Botflow/internal/repo"
)

// memStore — SessionStore и EventLog в памяти с семантикой repo.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
	events   []domain.Event

	// conflicts — сколько следующих Advance вернут ErrConflict.
	conflicts int
	advances  int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[uuid.UUID]*domain.Session)}
}

func (m *memStore) put(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
}

func (m *memStore) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return repo.ErrAlreadyExists
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *memStore) UpdateLanguage(_ context.Context, id uuid.UUID, language string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return repo.ErrNotFound
	}
	s.Language = language
	s.UpdatedAt = now
	return nil
}

func (m *memStore) Advance(_ context.Context, event *domain.Event, expected int64, patch domain.SessionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advances++
	s, ok := m.sessions[event.SessionID]
	if !ok {
		return repo.ErrNotFound
	}
	if m.conflicts > 0 {
		m.conflicts--
		// Кто-то другой успел продвинуть сессию.
		s.Revision++
		return repo.ErrConflict
	}
	if s.Revision != expected {
		return repo.ErrConflict
	}
	s.Apply(patch, event.TS)
	revision := expected + 1
	event.Revision = &revision
	m.events = append(m.events, *event)
	return nil
}

func (m *memStore) CompleteHandoff(_ context.Context, id uuid.UUID, summary string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return repo.ErrNotFound
	}
	s.SummaryText = summary
	s.HandoffReady = true
	s.Status = domain.SessionStatusCompleted
	s.Revision++
	s.UpdatedAt = now
	return nil
}

func (m *memStore) ListPendingHandoffs(_ context.Context, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range m.sessions {
		if s.Status == domain.SessionStatusHandoffReady && !s.HandoffReady && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) DeleteExpired(_ context.Context, before time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if int(n) >= limit {
			break
		}
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			m.events = slices.DeleteFunc(m.events, func(e domain.Event) bool { return e.SessionID == id })
			n++
		}
	}
	return n, nil
}

func (m *memStore) Append(_ context.Context, event *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[event.SessionID]; !ok {
		return repo.ErrNotFound
	}
	for _, e := range m.events {
		if e.ID == event.ID {
			return repo.ErrAlreadyExists
		}
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *memStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]domain.Event, 0)
	for _, e := range m.events {
		if e.SessionID == sessionID {
			events = append(events, e)
		}
	}
	slices.SortStableFunc(events, func(a, b domain.Event) int { return a.TS.Compare(b.TS) })
	return events, nil
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	c.Lead = domain.CloneValues(s.Lead)
	c.BotInstance = s.BotInstance.Clone()
	return &c
}

// fakeNotifier запоминает опубликованные сессии.
type fakeNotifier struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (n *fakeNotifier) PublishHandoffReady(_ context.Context, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
	return n.err
}
