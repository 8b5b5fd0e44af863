package diagnostics

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStatus tracks the lifecycle of a diagnostic session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// SessionStage tracks how far an authentication session has advanced
// through its flow.
type SessionStage string

const (
	StageCredentials  SessionStage = "credentials"
	StageSecurityCode SessionStage = "security_code"
	StageComplete     SessionStage = "complete"
)

// Session records the diagnostics of one sensitive operation from start to
// finish: every error and warning raised along the way.
type Session struct {
	ID        string        `json:"id"`
	Operation string        `json:"operation"`
	Status    SessionStatus `json:"status"`
	Stage     SessionStage  `json:"stage"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`

	mu sync.Mutex
}

// Advance moves the session to a later flow stage.
func (s *Session) Advance(stage SessionStage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stage = stage
}

// CurrentStage returns the session's flow stage.
func (s *Session) CurrentStage() SessionStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Stage
}

// AddError appends an error entry to the session.
func (s *Session) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, msg)
}

// AddWarning appends a warning entry to the session.
func (s *Session) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Warnings = append(s.Warnings, msg)
}

// SessionStoreConfig bounds session retention in memory.
type SessionStoreConfig struct {
	// MaxAge evicts any session this long after it started, finished or not.
	MaxAge time.Duration `mapstructure:"max_age"`
	// CompletedMaxAge evicts finished sessions this long after they ended.
	CompletedMaxAge time.Duration `mapstructure:"completed_max_age"`
	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ApplyDefaults fills zero values with sensible defaults.
func (c *SessionStoreConfig) ApplyDefaults() {
	if c.MaxAge <= 0 {
		c.MaxAge = 30 * time.Minute
	}
	if c.CompletedMaxAge <= 0 {
		c.CompletedMaxAge = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// SessionStore keeps diagnostic sessions in memory, keyed by id. Retention
// is age based; the store never grows without bound as long as Sweep runs.
type SessionStore struct {
	cfg      SessionStoreConfig
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates an in-memory session store.
func NewSessionStore(cfg SessionStoreConfig) *SessionStore {
	cfg.ApplyDefaults()
	return &SessionStore{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Begin opens a new active session for the given operation.
func (s *SessionStore) Begin(operation string) *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		Operation: operation,
		Status:    SessionActive,
		Stage:     StageCredentials,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns a session by id.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// End marks a session finished with the given status. Ending an already
// finished session is a no-op.
func (s *SessionStore) End(sess *Session, status SessionStatus) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.Status != SessionActive {
		return
	}
	sess.Status = status
	sess.EndedAt = time.Now().UTC()
}

// Len returns the number of retained sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions past their retention window as of now and returns
// how many were removed.
func (s *SessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		expired := now.Sub(sess.StartedAt) > s.cfg.MaxAge ||
			(sess.Status != SessionActive && now.Sub(sess.EndedAt) > s.cfg.CompletedMaxAge)
		sess.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
