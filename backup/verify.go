package backup

import "fmt"

// BackupVerificationFailed reports the first height at which a recomputed
// UTXO-set commitment diverged from the stored snapshot, so an operator (or
// an automated restore pipeline) can pinpoint exactly where corruption
// entered rather than re-scanning the whole chain.
type BackupVerificationFailed struct {
	FirstFailingHeight uint64
	Reason             string
}

func (e *BackupVerificationFailed) Error() string {
	return fmt.Sprintf("backup verification failed at height %d: %s", e.FirstFailingHeight, e.Reason)
}

// HeightUTXORoot pairs a height with the UTXO-set commitment the snapshot
// recorded for it.
type HeightUTXORoot struct {
	Height      uint64
	UTXORootHex string
}

// VerifyRestore recomputes the UTXO-set root at every height in expected
// (in ascending order) via recompute, and compares it against the stored
// value, returning a *BackupVerificationFailed at the first mismatch.
// expected must be sorted ascending by Height; out-of-order input is a
// caller bug, not a verification failure, so it panics rather than silently
// validating the wrong heights.
func VerifyRestore(expected []HeightUTXORoot, recompute func(height uint64) (string, error)) error {
	for i := 1; i < len(expected); i++ {
		if expected[i].Height <= expected[i-1].Height {
			panic("backup: VerifyRestore requires expected sorted strictly ascending by height")
		}
	}
	for _, e := range expected {
		got, err := recompute(e.Height)
		if err != nil {
			return &BackupVerificationFailed{FirstFailingHeight: e.Height, Reason: err.Error()}
		}
		if got != e.UTXORootHex {
			return &BackupVerificationFailed{
				FirstFailingHeight: e.Height,
				Reason:             fmt.Sprintf("utxo root mismatch: expected %s, recomputed %s", e.UTXORootHex, got),
			}
		}
	}
	return nil
}
