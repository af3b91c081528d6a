// ABOUTME: Session manager mapping transport identifiers to logical call channels.
// ABOUTME: Owns session lifecycle: creation, idle sweeping, and single-close semantics.

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/clinic-gateway/internal/dispatch"
)

var (
	// ErrUnknownSession means the caller presented an identifier the manager
	// does not recognize, either never issued or already swept.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionAlreadyInitialized means a handshake arrived bearing an
	// identifier that is already live.
	ErrSessionAlreadyInitialized = errors.New("session already initialized")

	// ErrSessionClosed means an event could not be delivered because the
	// session's stream is gone.
	ErrSessionClosed = errors.New("session closed")
)

// Kind distinguishes how a session exchanges its identifier with the client.
type Kind string

const (
	// KindSingleEndpoint sessions echo their id in a request header.
	KindSingleEndpoint Kind = "single-endpoint"
	// KindDualChannel sessions carry their id as a query parameter and
	// receive results on a separate event stream.
	KindDualChannel Kind = "dual-channel"
)

// eventBuffer is the outbound channel capacity for dual-channel sessions.
const eventBuffer = 16

// callQueue is the pending-call capacity for dual-channel sessions.
const callQueue = 64

// Session is one logical client connection. The manager owns the lifecycle;
// callers hold the pointer only between Resolve and the end of the call.
type Session struct {
	ID         string
	Kind       Kind
	Owner      string // credential the session is bound to, empty when unenforced
	CreatedAt  time.Time
	LastSeenAt time.Time // guarded by the manager's mutex

	// callMu serializes dispatch on this session so results are produced in
	// arrival order.
	callMu sync.Mutex

	mu     sync.Mutex
	closed bool
	events chan *dispatch.Response

	// calls is the FIFO work queue for dual-channel sessions, drained by a
	// single goroutine started on first Enqueue. done unblocks the drainer
	// when the session closes.
	calls chan func()
	done  chan struct{}
}

// Events returns the outbound stream for dual-channel sessions. The channel
// is closed exactly once when the session closes.
func (s *Session) Events() <-chan *dispatch.Response {
	return s.events
}

// Deliver queues a response on the session's event stream. Returns
// ErrSessionClosed if the session closed first; the result is then dropped,
// never partially written. A full buffer means the consumer stopped reading,
// so the session is closed; the client observes the ended stream rather than
// silently missing results.
func (s *Session) Deliver(resp *dispatch.Response) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	select {
	case s.events <- resp:
		s.mu.Unlock()
		return nil
	default:
	}
	s.mu.Unlock()

	s.close()
	return fmt.Errorf("event buffer full, closing session: %w", ErrSessionClosed)
}

// Serialize runs fn while holding the session's call lock.
func (s *Session) Serialize(fn func()) {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	fn()
}

// Enqueue appends fn to the session's call queue and returns before it runs.
// A single drainer executes queued calls strictly in Enqueue order, so two
// calls enqueued in sequence produce their results in that sequence.
func (s *Session) Enqueue(fn func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.calls == nil {
		s.calls = make(chan func(), callQueue)
		go s.drain()
	}
	calls := s.calls
	s.mu.Unlock()

	select {
	case calls <- fn:
		return nil
	default:
		return errors.New("session call queue full")
	}
}

// drain executes queued calls one at a time until the session closes.
// Pending calls at close time are dropped whole, matching Deliver.
func (s *Session) drain() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.calls:
			fn()
		}
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
	close(s.done)
}

// Manager owns every live session across all transports. Safe for concurrent
// use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager creates a session manager with the given idle timeout.
func NewManager(idleTimeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
}

// Open mints a new session bound to the given owner credential.
func (m *Manager) Open(kind Kind, owner string) *Session {
	now := m.now()
	sess := &Session{
		ID:         uuid.New().String(),
		Kind:       kind,
		Owner:      owner,
		CreatedAt:  now,
		LastSeenAt: now,
		events:     make(chan *dispatch.Response, eventBuffer),
		done:       make(chan struct{}),
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Debug("session opened", "session_id", sess.ID, "kind", kind)
	return sess
}

// Resolve returns the session with the given id and extends its idle
// deadline. Returns ErrUnknownSession if the id is not live.
func (m *Manager) Resolve(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	sess.LastSeenAt = m.now()
	return sess, nil
}

// Known reports whether the id belongs to a live session without touching
// its idle deadline.
func (m *Manager) Known(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// Close removes the session and closes its event stream. Reports whether the
// session existed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	sess.close()
	m.logger.Debug("session closed", "session_id", id)
	return true
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start launches the idle sweeper. It stops when ctx is cancelled or Stop is
// called.
func (m *Manager) Start(ctx context.Context) {
	interval := m.idleTimeout / 4
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// Stop halts the sweeper and closes every live session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	stale := make([]*Session, 0, len(m.sessions))
	for id, sess := range m.sessions {
		stale = append(stale, sess)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, sess := range stale {
		sess.close()
	}
}

// sweep closes sessions idle past the timeout. A call racing the sweep either
// resolved the session first and completes normally, or resolves after
// removal and observes ErrUnknownSession.
func (m *Manager) sweep() {
	deadline := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		if sess.LastSeenAt.Before(deadline) {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.close()
		m.logger.Info("session expired", "session_id", sess.ID, "kind", sess.Kind)
	}
}
