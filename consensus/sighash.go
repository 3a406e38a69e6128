package consensus

import "supernova.dev/node/crypto"

// SighashV1Digest computes the input-binding signature digest for inputIndex.
// It commits to the chain ID, the full prevout/sequence/output sets (so a
// signature cannot be replayed against a mutated transaction), and the exact
// value being spent.
func SighashV1Digest(p crypto.CryptoProvider, chainID [32]byte, tx *Tx, inputIndex uint32, inputValue uint64) ([32]byte, error) {
	var zero [32]byte
	if tx == nil {
		return zero, txerr(TX_ERR_PARSE, "sighash: nil tx")
	}
	if int(inputIndex) >= len(tx.Inputs) {
		return zero, txerr(TX_ERR_PARSE, "sighash: input_index out of bounds")
	}

	prevouts := make([]byte, 0, len(tx.Inputs)*(32+4))
	for _, in := range tx.Inputs {
		prevouts = append(prevouts, in.PrevTxid[:]...)
		prevouts = AppendU32le(prevouts, in.PrevVout)
	}
	hashOfAllPrevouts := p.SHA3_256(prevouts)

	sequences := make([]byte, 0, len(tx.Inputs)*4)
	for _, in := range tx.Inputs {
		sequences = AppendU32le(sequences, in.Sequence)
	}
	hashOfAllSequences := p.SHA3_256(sequences)

	outputsBytes := make([]byte, 0, len(tx.Outputs)*64)
	for _, o := range tx.Outputs {
		outputsBytes = AppendU64le(outputsBytes, o.Value)
		outputsBytes = AppendU16le(outputsBytes, o.CovenantType)
		outputsBytes = AppendCompactSize(outputsBytes, uint64(len(o.CovenantData)))
		outputsBytes = append(outputsBytes, o.CovenantData...)
	}
	hashOfAllOutputs := p.SHA3_256(outputsBytes)

	in := tx.Inputs[inputIndex]

	preimage := make([]byte, 0, 256)
	preimage = append(preimage, []byte("SUPERNOVAv1-sighash/")...)
	preimage = append(preimage, chainID[:]...)
	preimage = AppendU32le(preimage, tx.Version)
	preimage = AppendU64le(preimage, tx.TxNonce)
	preimage = append(preimage, hashOfAllPrevouts[:]...)
	preimage = append(preimage, hashOfAllSequences[:]...)
	preimage = AppendU32le(preimage, inputIndex)
	preimage = append(preimage, in.PrevTxid[:]...)
	preimage = AppendU32le(preimage, in.PrevVout)
	preimage = AppendU64le(preimage, inputValue)
	preimage = AppendU32le(preimage, in.Sequence)
	preimage = append(preimage, hashOfAllOutputs[:]...)
	preimage = AppendU32le(preimage, tx.Locktime)

	return p.SHA3_256(preimage), nil
}
