package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gostudio/domain/core"
	studio "gostudio/domain/session"
	"gostudio/internal"
	"gostudio/ports"
)

// Manager owns the live sessions. Every operation on a session runs under that
// session's lock; different sessions never block each other. Snapshots are written
// through to the store after each operation, and sessions missing from memory are
// restored from it.
type Manager struct {
	store  ports.SessionStore // nil keeps sessions in memory only
	ttl    time.Duration
	logger *internal.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[core.SessionID]*entry
}

type entry struct {
	mu         sync.Mutex
	session    *studio.Session
	lastAccess time.Time
	removed    bool
}

// NewManager creates a manager whose sessions expire after ttl of inactivity
func NewManager(store ports.SessionStore, ttl time.Duration) *Manager {
	return &Manager{
		store:   store,
		ttl:     ttl,
		logger:  internal.DefaultLogger,
		now:     core.Now,
		entries: make(map[core.SessionID]*entry),
	}
}

// Create starts a new session in LANDING and persists it
func (m *Manager) Create(ctx context.Context) (*studio.Session, error) {
	now := m.now()
	s := studio.New(core.NewSessionID(), now)
	s.Say(studio.RoleSystem, "Upload a CSV or Excel file to begin.", now)
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.entries[s.ID] = &entry{session: s, lastAccess: now}
	m.mu.Unlock()

	m.logger.Info("[SessionManager] Created session %s", s.ID)
	return s, nil
}

// With runs fn on the session while holding its lock, then persists the session.
// The snapshot is written even when fn fails, because failures are recorded in
// the session itself.
func (m *Manager) With(ctx context.Context, id core.SessionID, fn func(s *studio.Session) error) error {
	e, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	fnErr := fn(e.session)
	if err := m.persist(ctx, e.session); err != nil {
		if fnErr != nil {
			m.logger.Error("[SessionManager] Failed to persist session %s after error %v: %v", id, fnErr, err)
			return fnErr
		}
		return err
	}
	return fnErr
}

// View runs fn on the session while holding its lock without persisting it
func (m *Manager) View(ctx context.Context, id core.SessionID, fn func(s *studio.Session) error) error {
	e, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	return fn(e.session)
}

// Delete drops the session from memory and from the store
func (m *Manager) Delete(ctx context.Context, id core.SessionID) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
	}
	m.logger.Info("[SessionManager] Deleted session %s", id)
	return nil
}

// Len returns the number of sessions held in memory
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ============================================================================
// EXPIRY
// ============================================================================

// Sweep removes sessions idle for longer than the TTL and returns how many it
// removed. Sessions busy with an operation are never idle.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.ttl)

	var expired []core.SessionID
	m.mu.Lock()
	for id, e := range m.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastAccess.Before(cutoff) {
			e.removed = true
			delete(m.entries, id)
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}
	m.mu.Unlock()

	for _, id := range expired {
		if m.store == nil {
			continue
		}
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Warn("[SessionManager] Failed to delete expired session %s: %v", id, err)
		}
	}
	return len(expired)
}

// Run sweeps every interval until ctx is cancelled
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("[SessionManager] Expiring sessions idle for %s (sweep every %s)", m.ttl, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.Sweep(ctx); removed > 0 {
				m.logger.Info("[SessionManager] Expired %d idle sessions", removed)
			}
		}
	}
}

// ============================================================================
// INTERNALS
// ============================================================================

// acquire returns the locked entry for id, restoring it from the store if needed
func (m *Manager) acquire(ctx context.Context, id core.SessionID) (*entry, error) {
	for {
		e, err := m.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if !e.removed {
			e.lastAccess = m.now()
			return e, nil
		}
		// removed between lookup and lock
		e.mu.Unlock()
		m.mu.Lock()
		_, back := m.entries[id]
		m.mu.Unlock()
		if !back {
			return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
		}
	}
}

func (m *Manager) lookup(ctx context.Context, id core.SessionID) (*entry, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if ok {
		return e, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}

	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := studio.Decode(snap.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[id]; ok {
		return existing, nil
	}
	e = &entry{session: s, lastAccess: m.now()}
	m.entries[id] = e
	m.logger.Debug("[SessionManager] Restored session %s in phase %s", id, s.Phase())
	return e, nil
}

func (m *Manager) persist(ctx context.Context, s *studio.Session) error {
	if m.store == nil {
		return nil
	}
	data, err := studio.Encode(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	snap := ports.SessionSnapshot{
		ID:        s.ID,
		Phase:     string(s.Phase()),
		Data:      data,
		UpdatedAt: s.UpdatedAt,
	}
	if err := m.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}
