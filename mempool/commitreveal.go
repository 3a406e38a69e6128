package mempool

import (
	"time"

	"supernova.dev/node/errs"
)

const (
	CodeCommitNotFound     errs.Code = "COMMIT_NOT_FOUND"
	CodeCommitExpired      errs.Code = "COMMIT_EXPIRED"
	CodeRevealTooEarly     errs.Code = "REVEAL_TOO_EARLY"
	CodeRevealMismatch     errs.Code = "REVEAL_MISMATCH"
	CodeDuplicateCommitted errs.Code = "DUPLICATE_COMMITMENT"
)

// commitRecord tracks one pending commit-reveal submission: a sender commits
// to a transaction's hash, then must reveal the full transaction only after
// the commit phase elapses and before the reveal phase closes — the two-
// phase gap denies a block producer (or a mempool-watching bot) the ability
// to see and front-run the transaction's content before it's locked in.
type commitRecord struct {
	commitment [32]byte
	committedAt time.Time
}

// CommitRevealGuard enforces the two-phase submission window on top of Pool.
type CommitRevealGuard struct {
	commitPhaseDuration time.Duration
	revealPhaseDuration time.Duration
	commits             map[[32]byte]commitRecord
}

func NewCommitRevealGuard(commitPhaseDuration, revealPhaseDuration time.Duration) *CommitRevealGuard {
	return &CommitRevealGuard{
		commitPhaseDuration: commitPhaseDuration,
		revealPhaseDuration: revealPhaseDuration,
		commits:             make(map[[32]byte]commitRecord),
	}
}

// Commit records a sender's commitment to a transaction they intend to
// reveal later. senderKey scopes commitments per sender so one sender's
// commit never lets another sender race to reveal it first.
func (g *CommitRevealGuard) Commit(senderKey, commitment [32]byte, now time.Time) error {
	if existing, ok := g.commits[senderKey]; ok && now.Sub(existing.committedAt) < g.commitPhaseDuration+g.revealPhaseDuration {
		return errs.New(errs.KindTransaction, CodeDuplicateCommitted, "sender already has a commitment pending")
	}
	g.commits[senderKey] = commitRecord{commitment: commitment, committedAt: now}
	return nil
}

// Reveal validates that txHash matches the committed hash and that now falls
// at or after the end of the commit phase and strictly before the reveal
// phase closes. On success the commitment is consumed.
func (g *CommitRevealGuard) Reveal(senderKey [32]byte, txHash [32]byte, now time.Time) error {
	rec, ok := g.commits[senderKey]
	if !ok {
		return errs.New(errs.KindTransaction, CodeCommitNotFound, "no pending commitment for sender")
	}
	elapsed := now.Sub(rec.committedAt)
	if elapsed < g.commitPhaseDuration {
		return errs.New(errs.KindTransaction, CodeRevealTooEarly, "reveal attempted before commit phase elapsed")
	}
	if elapsed >= g.commitPhaseDuration+g.revealPhaseDuration {
		delete(g.commits, senderKey)
		return errs.New(errs.KindTransaction, CodeCommitExpired, "reveal window closed")
	}
	if rec.commitment != txHash {
		return errs.New(errs.KindTransaction, CodeRevealMismatch, "revealed transaction does not match commitment")
	}
	delete(g.commits, senderKey)
	return nil
}
