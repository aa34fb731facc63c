// Package session tracks the per-user editing context behind open chat
// interactions: the working card spec, the active subscreen, and the
// single attachment the user is expected to send next.
package session

import (
	"sync"
	"time"

	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
	"github.com/tinyland-inc/cardsmith/pkg/render"
)

// Timeout is the inactivity window before a session is garbage-collected.
const Timeout = 300 * time.Second

// Mode tags which subscreen the session is showing.
type Mode string

const (
	ModeEmbed       Mode = "embed"
	ModeConverter   Mode = "converter"
	ModeLevelSystem Mode = "level_system"
	ModeWelcome     Mode = "welcome_system"
	ModePantheon    Mode = "pantheon"
	ModeStockage    Mode = "stockage"
)

// PendingUpload names what the next attachment from the owner should
// become.
type PendingUpload struct {
	Target string
}

// Session is one user's editing context. Mutation happens only through
// Service.Update, which enforces ownership.
type Session struct {
	Owner   string
	Mode    Mode
	Spec    render.Spec
	Fields  map[string]string
	Pending *PendingUpload

	deadline time.Time
}

// Service owns the session map. Created at startup; screens and channel
// adapters share one instance.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewService() *Service {
	return &Service{sessions: make(map[string]*Session), now: time.Now}
}

// Open starts a fresh session for owner, replacing any previous one.
func (s *Service) Open(owner string, mode Mode) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{
		Owner:    owner,
		Mode:     mode,
		Fields:   make(map[string]string),
		deadline: s.now().Add(Timeout),
	}
	s.sessions[owner] = sess
	logger.InfoCF("session", "session opened", map[string]any{"owner": owner, "mode": string(mode)})
	return sess
}

// Resolve returns owner's live session for actor. A non-owner gets a
// permission refusal; a timed-out session is collected and reported
// expired. Access renews the deadline.
func (s *Service) Resolve(owner, actor string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(owner, actor)
}

func (s *Service) resolveLocked(owner, actor string) (*Session, error) {
	sess, ok := s.sessions[owner]
	if !ok {
		return nil, faults.Newf(faults.SessionExpired, "no open session for %s", owner)
	}
	if s.now().After(sess.deadline) {
		delete(s.sessions, owner)
		logger.InfoCF("session", "session expired", map[string]any{"owner": owner})
		return nil, faults.Newf(faults.SessionExpired, "session for %s timed out", owner)
	}
	if actor != owner {
		return nil, faults.Newf(faults.PermissionDenied, "session belongs to someone else")
	}
	sess.deadline = s.now().Add(Timeout)
	return sess, nil
}

// Update runs fn on owner's session under the service lock.
func (s *Service) Update(owner, actor string, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.resolveLocked(owner, actor)
	if err != nil {
		return err
	}
	return fn(sess)
}

// TakePending pops the pending upload marker if the session has one.
func (s *Service) TakePending(owner string) (PendingUpload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.resolveLocked(owner, owner)
	if err != nil || sess.Pending == nil {
		return PendingUpload{}, false
	}
	p := *sess.Pending
	sess.Pending = nil
	return p, true
}

// Close ends owner's session explicitly.
func (s *Service) Close(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[owner]; ok {
		delete(s.sessions, owner)
		logger.InfoCF("session", "session closed", map[string]any{"owner": owner})
	}
}

// Sweep drops every expired session. The channel adapter calls it
// opportunistically; correctness does not depend on it since Resolve also
// collects.
func (s *Service) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	dropped := 0
	for owner, sess := range s.sessions {
		if now.After(sess.deadline) {
			delete(s.sessions, owner)
			dropped++
		}
	}
	if dropped > 0 {
		logger.InfoCF("session", "expired sessions collected", map[string]any{"count": dropped})
	}
	return dropped
}
