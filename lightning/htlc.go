// Package lightning implements the payment-channel HTLC state machine used
// by commitment-tier covenant outputs (CORE_HTLC_V1/CORE_HTLC_V2).
package lightning

import (
	"supernova.dev/node/errs"
)

// State is an HTLC's lifecycle stage.
type State string

const (
	StatePending   State = "PENDING"
	StateCommitted State = "COMMITTED"
	StateClaimed   State = "CLAIMED"
	StateRefunded  State = "REFUNDED"
	StateFailed    State = "FAILED"
)

const (
	CodeBadTransition     errs.Code = "HTLC_BAD_TRANSITION"
	CodePreimageMismatch  errs.Code = "HTLC_PREIMAGE_MISMATCH"
	CodeRefundTooEarly    errs.Code = "HTLC_REFUND_TOO_EARLY"
	CodeInvalidBaseExpiry errs.Code = "HTLC_INVALID_BASE_EXPIRY"
)

// Quantum-signature verification and propagation take longer than a
// classical signature, so an HTLC funded with a quantum-suite commitment key
// gets its expiry pushed out by this many blocks: 144 blocks of verification
// buffer plus 72 blocks of propagation slack.
const quantumExpiryBuffer = 144 + 72

const (
	minBaseTimeoutBlocks = 288
	maxBaseTimeoutBlocks = 2016
)

// HTLC is one hashed-timelock contract between two parties over a payment
// channel.
type HTLC struct {
	ID             [32]byte
	Hashlock       [32]byte
	Preimage       []byte
	AmountUnits    uint64
	BaseExpiry     uint64 // absolute height, before §4.9's quantum buffer is applied
	QuantumKeyed   bool   // true when the commitment key uses SUITE_ID_ML_DSA or SUITE_ID_SLH_DSA
	state          State
	FailureReason  string
}

// EffectiveExpiry returns the height at which this HTLC's timeout path
// becomes spendable, applying the quantum verification/propagation buffer
// when the commitment key is quantum-signed.
func (h *HTLC) EffectiveExpiry() uint64 {
	if h.QuantumKeyed {
		return h.BaseExpiry + quantumExpiryBuffer
	}
	return h.BaseExpiry
}

// NewHTLC validates baseExpiry against the allowed timeout range and
// constructs a PENDING HTLC.
func NewHTLC(id, hashlock [32]byte, amount, baseExpiry uint64, quantumKeyed bool) (*HTLC, error) {
	if baseExpiry < minBaseTimeoutBlocks || baseExpiry > maxBaseTimeoutBlocks {
		return nil, errs.New(errs.KindLightning, CodeInvalidBaseExpiry, "base expiry outside [288, 2016] block range")
	}
	return &HTLC{
		ID:           id,
		Hashlock:     hashlock,
		AmountUnits:  amount,
		BaseExpiry:   baseExpiry,
		QuantumKeyed: quantumKeyed,
		state:        StatePending,
	}, nil
}

func (h *HTLC) State() State { return h.state }

// Commit transitions PENDING -> COMMITTED once both channel parties have
// co-signed the commitment transaction carrying this HTLC output.
func (h *HTLC) Commit() error {
	if h.state != StatePending {
		return errs.New(errs.KindLightning, CodeBadTransition, "commit requires state PENDING, have "+string(h.state))
	}
	h.state = StateCommitted
	return nil
}

// Claim reveals preimage and transitions COMMITTED -> CLAIMED if it hashes
// to h.Hashlock under hasher.
func (h *HTLC) Claim(preimage []byte, hasher func([]byte) [32]byte) error {
	if h.state != StateCommitted {
		return errs.New(errs.KindLightning, CodeBadTransition, "claim requires state COMMITTED, have "+string(h.state))
	}
	if hasher(preimage) != h.Hashlock {
		return errs.New(errs.KindLightning, CodePreimageMismatch, "preimage does not hash to htlc hashlock")
	}
	h.Preimage = append([]byte(nil), preimage...)
	h.state = StateClaimed
	return nil
}

// Refund transitions COMMITTED -> REFUNDED once currentHeight has passed
// EffectiveExpiry.
func (h *HTLC) Refund(currentHeight uint64) error {
	if h.state != StateCommitted {
		return errs.New(errs.KindLightning, CodeBadTransition, "refund requires state COMMITTED, have "+string(h.state))
	}
	if currentHeight < h.EffectiveExpiry() {
		return errs.New(errs.KindLightning, CodeRefundTooEarly, "refund attempted before effective expiry")
	}
	h.state = StateRefunded
	return nil
}

func (h *HTLC) Fail(reason string) {
	h.FailureReason = reason
	h.state = StateFailed
}

// Channel tracks the set of in-flight HTLCs for one payment channel and
// sweeps expired ones on each new block.
type Channel struct {
	HTLCs map[[32]byte]*HTLC
}

func NewChannel() *Channel {
	return &Channel{HTLCs: make(map[[32]byte]*HTLC)}
}

func (c *Channel) Add(h *HTLC) { c.HTLCs[h.ID] = h }

// ProcessExpiredHTLCs refunds every COMMITTED HTLC whose effective expiry
// has passed as of currentHeight, returning the IDs refunded.
func (c *Channel) ProcessExpiredHTLCs(currentHeight uint64) [][32]byte {
	var refunded [][32]byte
	for id, h := range c.HTLCs {
		if h.State() != StateCommitted {
			continue
		}
		if currentHeight >= h.EffectiveExpiry() {
			if err := h.Refund(currentHeight); err == nil {
				refunded = append(refunded, id)
			}
		}
	}
	return refunded
}
