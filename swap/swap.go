// Package swap implements the dual-HTLC atomic-swap session lifecycle:
// session creation, funding, claim-by-preimage, and timeout-refund, across a
// supernova chain and a counterparty chain (modeled via the Adapter
// interface; btc_adapter.go provides the Bitcoin-compatible leg).
package swap

import (
	"github.com/google/uuid"

	"supernova.dev/node/errs"
)

// State is a swap session's lifecycle stage.
type State string

const (
	StateInitiated State = "INITIATED" // hashlock/timeouts agreed, neither leg funded
	StateFunded    State = "FUNDED"    // both legs broadcast their HTLC outputs
	StateClaimed   State = "CLAIMED"   // preimage revealed and claimed on at least one leg
	StateRefunded  State = "REFUNDED"  // a timeout refund was taken
	StateFailed    State = "FAILED"    // invariant violation or counterparty fault
)

const (
	CodeDuplicateSession   errs.Code = "DUPLICATE_SESSION"
	CodeInvalidTimeoutSkew errs.Code = "INVALID_TIMEOUT_SKEW"
	CodeUnknownSession     errs.Code = "UNKNOWN_SESSION"
	CodeBadTransition      errs.Code = "BAD_TRANSITION"
	CodePreimageMismatch   errs.Code = "PREIMAGE_MISMATCH"
)

// minTimeoutSkew is the minimum number of responder-chain blocks the
// responder leg's timeout (T_B) must expire before the initiator leg's
// timeout (T_A), so the initiator always has a safe window to claim on the
// responder leg (revealing the preimage) before the responder can refund —
// without that, the responder could refund and still later claim the
// initiator leg.
const minTimeoutSkew = 72

// Session is one atomic-swap negotiation between two chains.
type Session struct {
	SessionID      string
	Hashlock       [32]byte
	Preimage       []byte // populated only after a successful claim
	TimeoutA       uint64 // initiator-leg absolute height (T_A)
	TimeoutB       uint64 // responder-leg absolute height (T_B), must satisfy T_B < T_A
	InitiatorChain string
	ResponderChain string
	FailureReason  string
	state          State
}

// Manager tracks in-flight sessions and rejects session-ID collisions, the
// same defense the mempool admission path uses for tx hashes.
type Manager struct {
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Open creates a new session after validating the T_B < T_A safety invariant
// with the required minimum skew, and rejects a caller-supplied session ID
// that collides with one already tracked.
func (m *Manager) Open(sessionID string, hashlock [32]byte, timeoutA, timeoutB uint64, initiatorChain, responderChain string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if _, exists := m.sessions[sessionID]; exists {
		return nil, errs.New(errs.KindLightning, CodeDuplicateSession, "session id already in use: "+sessionID)
	}
	if !(timeoutB+minTimeoutSkew <= timeoutA) {
		return nil, errs.New(errs.KindLightning, CodeInvalidTimeoutSkew, "responder timeout must precede initiator timeout by at least the minimum skew")
	}
	s := &Session{
		SessionID:      sessionID,
		Hashlock:       hashlock,
		TimeoutA:       timeoutA,
		TimeoutB:       timeoutB,
		InitiatorChain: initiatorChain,
		ResponderChain: responderChain,
		state:          StateInitiated,
	}
	m.sessions[sessionID] = s
	return s, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, errs.New(errs.KindLightning, CodeUnknownSession, "no such session: "+sessionID)
	}
	return s, nil
}

func (s *Session) State() State { return s.state }

// Fund transitions INITIATED -> FUNDED once both legs have broadcast their
// HTLC-locked outputs.
func (s *Session) Fund() error {
	if s.state != StateInitiated {
		return errs.New(errs.KindLightning, CodeBadTransition, "fund requires state INITIATED, have "+string(s.state))
	}
	s.state = StateFunded
	return nil
}

// Claim reveals preimage, verifies it against the session's hashlock via
// hasher, and transitions FUNDED -> CLAIMED. hasher is injected so this
// package never hand-rolls its own digest over untrusted preimage input.
func (s *Session) Claim(preimage []byte, hasher func([]byte) [32]byte) error {
	if s.state != StateFunded {
		return errs.New(errs.KindLightning, CodeBadTransition, "claim requires state FUNDED, have "+string(s.state))
	}
	if hasher(preimage) != s.Hashlock {
		return errs.New(errs.KindLightning, CodePreimageMismatch, "preimage does not hash to session hashlock")
	}
	s.Preimage = append([]byte(nil), preimage...)
	s.state = StateClaimed
	return nil
}

// Refund transitions FUNDED -> REFUNDED once currentHeight has passed the
// relevant leg's timeout; callers pick which leg's timeout applies (T_A for
// the initiator's own refund path, T_B for the responder's).
func (s *Session) Refund(currentHeight, legTimeout uint64) error {
	if s.state != StateFunded {
		return errs.New(errs.KindLightning, CodeBadTransition, "refund requires state FUNDED, have "+string(s.state))
	}
	if currentHeight < legTimeout {
		return errs.New(errs.KindLightning, CodeBadTransition, "refund attempted before leg timeout")
	}
	s.state = StateRefunded
	return nil
}

// Fail marks a session permanently dead outside the normal happy/refund
// paths (e.g. a counterparty-fault detected by the monitor loop).
func (s *Session) Fail(reason string) {
	s.FailureReason = reason
	s.state = StateFailed
}
