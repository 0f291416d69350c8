package session

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/chatline/internal/logging"
)

// Manager owns the username-to-session map. All mutations go through one
// mutex; per-connection request processing that does not touch sessions is
// never blocked by it.
type Manager struct {
	mu     sync.Mutex
	byUser map[string]*Session
	logger logging.Logger
}

func NewManager(logger logging.Logger) *Manager {
	return &Manager{
		byUser: make(map[string]*Session),
		logger: logger.With("module", "session"),
	}
}

// Open registers sess as its user's single live session. If the user was
// already logged in, the prior session is swapped out atomically and
// returned so the caller can notify and close it; from the moment Open
// returns, Route only ever yields the new session.
func (m *Manager) Open(sess *Session) (evicted *Session) {
	m.mu.Lock()
	evicted = m.byUser[sess.Username]
	m.byUser[sess.Username] = sess
	m.mu.Unlock()

	if evicted != nil {
		m.logger.Info(context.Background(), "session evicted by new login",
			"username", sess.Username, "old_session", evicted.ID, "new_session", sess.ID)
	}
	return evicted
}

// Close removes the mapping for sess. Idempotent, and a no-op when the user
// has since been remapped to a different session (eviction followed by the
// old connection's late cleanup).
func (m *Manager) Close(sess *Session) {
	if sess == nil {
		return
	}

	m.mu.Lock()
	if current, ok := m.byUser[sess.Username]; ok && current.ID == sess.ID {
		delete(m.byUser, sess.Username)
	}
	m.mu.Unlock()
}

// Route returns the user's live session, if any. The delivery engine uses
// it to choose between pushing and leaving a message queued in the store.
func (m *Manager) Route(username string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byUser[username]
	return sess, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser)
}

// CloseAll tears down every session's connection. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.byUser))
	for _, s := range m.byUser {
		sessions = append(sessions, s)
	}
	m.byUser = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.CloseConn()
	}
}
