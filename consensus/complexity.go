package consensus

import "fmt"

// saturatingAddUint64 adds a and b, clamping to the maximum uint64 value
// instead of erroring on overflow. The complexity ceiling check needs
// saturating arithmetic (not addUint64's overflow-is-an-error semantics)
// because an adversarial block is exactly trying to make this sum overflow —
// clamping still correctly trips MAX_VALIDATION_OPS either way.
func saturatingAddUint64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// txComplexityScore scores one transaction's validation cost as
// inputs + outputs + inputs*outputs + scripts_size/10, where scripts_size is
// the total byte length of every ScriptSig, CovenantData, and witness
// pubkey/signature the transaction carries. The inputs*outputs term is what
// makes a maximal-input, maximal-output transaction disproportionately
// expensive to validate relative to its weight.
func txComplexityScore(tx *Tx) uint64 {
	inputs := uint64(len(tx.Inputs))
	outputs := uint64(len(tx.Outputs))

	var scriptsSize uint64
	for _, in := range tx.Inputs {
		scriptsSize = saturatingAddUint64(scriptsSize, uint64(len(in.ScriptSig)))
	}
	for _, out := range tx.Outputs {
		scriptsSize = saturatingAddUint64(scriptsSize, uint64(len(out.CovenantData)))
	}
	for _, w := range tx.Witness.Witnesses {
		scriptsSize = saturatingAddUint64(scriptsSize, uint64(len(w.Pubkey)))
		scriptsSize = saturatingAddUint64(scriptsSize, uint64(len(w.Signature)))
	}

	score := saturatingAddUint64(inputs, outputs)
	score = saturatingAddUint64(score, inputs*outputs)
	score = saturatingAddUint64(score, scriptsSize/10)
	return score
}

// checkBlockComplexity rejects a block whose total transaction complexity
// exceeds MAX_VALIDATION_OPS, before the expensive per-transaction apply
// loop runs (spec's quadratic-block-DoS defense).
func checkBlockComplexity(txs []Tx) error {
	var total uint64
	for i := range txs {
		total = saturatingAddUint64(total, txComplexityScore(&txs[i]))
		if total > MAX_VALIDATION_OPS {
			return fmt.Errorf(BLOCK_ERR_COMPLEXITY_EXCEEDED)
		}
	}
	return nil
}
