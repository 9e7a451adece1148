package driver

import (
	"sync"
	"time"

	"github.com/srg/aquabled/internal/protocol"
)

// MsgIDSession tracks the rolling message id used for one peripheral's
// outgoing frames, forcing a reset once it has been live too long or has
// issued too many ids — both configurable, matching the env-tunable
// thresholds the orchestrator exposes.
type MsgIDSession struct {
	mu          sync.Mutex
	current     protocol.MsgID
	startedAt   time.Time
	count       int
	resetPeriod time.Duration
	maxCommands int
	now         func() time.Time
}

// NewMsgIDSession creates a session that resets after resetPeriod has
// elapsed or maxCommands ids have been issued, whichever comes first.
func NewMsgIDSession(resetPeriod time.Duration, maxCommands int) *MsgIDSession {
	s := &MsgIDSession{
		resetPeriod: resetPeriod,
		maxCommands: maxCommands,
		now:         time.Now,
	}
	s.resetLocked()
	return s
}

func (s *MsgIDSession) resetLocked() {
	s.current = protocol.ResetMsgID()
	s.startedAt = s.now()
	s.count = 0
}

// Next returns the id to use for the next outgoing frame, resetting the
// session first if it has expired, exhausted its command budget, or run the
// id space to the exhaustion threshold.
func (s *MsgIDSession) Next() protocol.MsgID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().Sub(s.startedAt) >= s.resetPeriod ||
		s.count >= s.maxCommands ||
		protocol.IsExhausted(s.current) {
		s.resetLocked()
	}

	id := s.current
	s.count++

	next, err := protocol.NextMsgID(s.current)
	if err != nil {
		// current was already validated on the way in; this can only
		// happen if NextMsgID's own invariants are violated.
		s.resetLocked()
	} else {
		s.current = next
	}
	return id
}
