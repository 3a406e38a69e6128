package consensus

import (
	"bytes"
	"fmt"

	"supernova.dev/node/crypto"
)

// ValidateBlockHeaderStage1 performs header-only validation for a block whose
// full ancestry may not yet be known (e.g. blocks relayed ahead of sync):
// merkle root and PoW are always checked; target and timestamp are only
// checked when ctx.AncestorHeaders is non-empty. Callers with full ancestry
// (ordinary ApplyBlock-path connects) should prefer ApplyBlock, which also
// validates and applies transactions.
func ValidateBlockHeaderStage1(p crypto.CryptoProvider, block *Block, ctx BlockValidationContext) error {
	if block == nil {
		return fmt.Errorf(BLOCK_ERR_PARSE)
	}

	headerTxs := make([]*Tx, len(block.Transactions))
	for i := range block.Transactions {
		headerTxs[i] = &block.Transactions[i]
	}
	merkleRoot, err := MerkleRootTxIDs(p, headerTxs)
	if err != nil {
		return fmt.Errorf(BLOCK_ERR_MERKLE_INVALID)
	}
	if merkleRoot != block.Header.MerkleRoot {
		return fmt.Errorf(BLOCK_ERR_MERKLE_INVALID)
	}

	if len(ctx.AncestorHeaders) > 0 {
		expected, err := expectedTargetFromAncestry(ctx.AncestorHeaders, ctx.Height)
		if err != nil {
			return err
		}
		if !bytes.Equal(block.Header.Target[:], expected[:]) {
			return fmt.Errorf(BLOCK_ERR_TARGET_INVALID)
		}

		medianTs, err := medianPastTimestamp(ctx.AncestorHeaders, ctx.Height)
		if err != nil {
			return err
		}
		if block.Header.Timestamp <= medianTs {
			return fmt.Errorf(BLOCK_ERR_TIMESTAMP_OLD)
		}
		if ctx.LocalTimeSet && block.Header.Timestamp > ctx.LocalTime+MAX_FUTURE_DRIFT {
			return fmt.Errorf(BLOCK_ERR_TIMESTAMP_FUTURE)
		}
		if err := checkTimeWarpManipulation(ctx.AncestorHeaders, block.Header.Timestamp); err != nil {
			return err
		}
	}

	blockHash := blockHeaderHash(p, &block.Header)
	if bytes.Compare(blockHash[:], block.Header.Target[:]) >= 0 {
		return fmt.Errorf(BLOCK_ERR_POW_INVALID)
	}

	return nil
}

// expectedTargetFromAncestry mirrors the retargeting cadence: the target only
// changes at WINDOW_SIZE boundaries, computed from the first and last
// timestamps of the closing window. ancestors must be ordered oldest-to-newest
// and end at height-1's header.
func expectedTargetFromAncestry(ancestors []BlockHeader, height uint64) ([32]byte, error) {
	last := ancestors[len(ancestors)-1]
	if height%WINDOW_SIZE != 0 || uint64(len(ancestors)) < WINDOW_SIZE {
		return last.Target, nil
	}
	first := ancestors[uint64(len(ancestors))-WINDOW_SIZE]
	return RetargetV1(last.Target, first.Timestamp, last.Timestamp)
}

// ExpectedTargetFromAncestry exports the retargeting-cadence target check for
// callers outside this package that validate headers without a full block
// (e.g. p2p header-chain relay).
func ExpectedTargetFromAncestry(ancestors []BlockHeader, height uint64) ([32]byte, error) {
	if len(ancestors) == 0 {
		return [32]byte{}, fmt.Errorf("header stage1: no ancestry for target check")
	}
	return expectedTargetFromAncestry(ancestors, height)
}

// MedianPastTimestamp exports the median-past-timestamp check for callers
// outside this package.
func MedianPastTimestamp(ancestors []BlockHeader, height uint64) (uint64, error) {
	return medianPastTimestamp(ancestors, height)
}
