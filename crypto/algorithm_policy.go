package crypto

import "fmt"

// SuiteID identifies a quantum (or sentinel/classical) signature suite. It
// mirrors consensus.SUITE_ID_* without importing the consensus package
// (crypto must not depend on consensus).
type SuiteID byte

const (
	SuiteSentinel SuiteID = 0x00
	SuiteMLDSA    SuiteID = 0x01
	SuiteSLHDSA   SuiteID = 0x02
)

// PolicyError is the §4.1 algorithm-allowlist error family. Every field is
// populated so callers can log a precise, non-generic diagnostic; downgrade
// attempts (P0-003) are a governance-level attack and must never be
// silently permitted.
type PolicyError struct {
	Code string
	Msg  string
}

func (e *PolicyError) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func newPolicyError(code, msg string) error { return &PolicyError{Code: code, Msg: msg} }

// ErrAlgorithmNotAllowed reports that a suite is not in the configured allowlist.
func ErrAlgorithmNotAllowed(suite SuiteID) error {
	return newPolicyError("AlgorithmNotAllowed", fmt.Sprintf("suite 0x%02x is not in the allowlist", byte(suite)))
}

// ErrPrematureTransition reports a signing attempt with a suite whose
// activation height has not yet been reached.
func ErrPrematureTransition(currentHeight, allowedHeight uint64) error {
	return newPolicyError("PrematureTransition", fmt.Sprintf("current height %d, allowed at %d", currentHeight, allowedHeight))
}

// ErrAlgorithmDowngrade reports a signing attempt using a suite weaker than
// the one an account has already committed to (P0-003).
func ErrAlgorithmDowngrade(from, attempted SuiteID) error {
	return newPolicyError("AlgorithmDowngrade", fmt.Sprintf("from 0x%02x to 0x%02x", byte(from), byte(attempted)))
}

// ErrAlgorithmMismatch reports that a signature's suite tag does not match
// the public key's suite tag.
func ErrAlgorithmMismatch(keyAlgo, sigAlgo SuiteID) error {
	return newPolicyError("AlgorithmMismatch", fmt.Sprintf("key uses 0x%02x, signature uses 0x%02x", byte(keyAlgo), byte(sigAlgo)))
}

// suiteStrength orders suites from weakest to strongest for downgrade
// detection. SLH-DSA is the stronger fallback suite (larger, more
// conservative security margin); ML-DSA is the primary, lighter-weight
// suite. Sentinel (unsigned/legacy) is weakest.
var suiteStrength = map[SuiteID]int{
	SuiteSentinel: 0,
	SuiteMLDSA:    1,
	SuiteSLHDSA:   2,
}

// AlgorithmPolicy enforces the §4.1 allowlist, activation-height gating, and
// downgrade protection for a single account's signing key.
type AlgorithmPolicy struct {
	Allowed         map[SuiteID]bool
	ActivationBlock map[SuiteID]uint64 // suite -> height at which it becomes usable
}

// NewAlgorithmPolicy builds a policy allowing the given suites, all active
// from genesis (height 0) unless overridden via WithActivation.
func NewAlgorithmPolicy(suites ...SuiteID) *AlgorithmPolicy {
	p := &AlgorithmPolicy{
		Allowed:         make(map[SuiteID]bool, len(suites)),
		ActivationBlock: make(map[SuiteID]uint64, len(suites)),
	}
	for _, s := range suites {
		p.Allowed[s] = true
		p.ActivationBlock[s] = 0
	}
	return p
}

// WithActivation sets the activation height for a suite already in the
// allowlist (e.g. gating SLH-DSA behind a governance-activated height).
func (p *AlgorithmPolicy) WithActivation(suite SuiteID, height uint64) *AlgorithmPolicy {
	p.ActivationBlock[suite] = height
	return p
}

// CheckSign validates a signing attempt: suite must be allowlisted, its
// activation height must have passed, and it must not be weaker than the
// account's previously committed suite (committed may be SuiteSentinel for
// an account that has never signed before).
func (p *AlgorithmPolicy) CheckSign(committed, attempted SuiteID, currentHeight uint64) error {
	if !p.Allowed[attempted] {
		return ErrAlgorithmNotAllowed(attempted)
	}
	if h := p.ActivationBlock[attempted]; currentHeight < h {
		return ErrPrematureTransition(currentHeight, h)
	}
	if suiteStrength[attempted] < suiteStrength[committed] {
		return ErrAlgorithmDowngrade(committed, attempted)
	}
	return nil
}

// CheckVerify validates that a public key's suite tag matches the
// signature's suite tag before any cryptographic verification is attempted —
// a mismatch must never be reported as a successful verification.
func (p *AlgorithmPolicy) CheckVerify(keyAlgo, sigAlgo SuiteID) error {
	if keyAlgo != sigAlgo {
		return ErrAlgorithmMismatch(keyAlgo, sigAlgo)
	}
	return nil
}
