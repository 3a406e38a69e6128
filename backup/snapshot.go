// Package backup implements periodic chain-state snapshotting, write-ahead
// log replay, and post-restore validation before a recovered chain state is
// promoted into place.
package backup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"supernova.dev/node/errs"
)

const (
	CodeSnapshotWrite errs.Code = "SNAPSHOT_WRITE_FAILED"
	CodeSnapshotRead  errs.Code = "SNAPSHOT_READ_FAILED"
	CodePromoteFailed errs.Code = "PROMOTE_FAILED"
)

// Snapshot is a point-in-time summary of header-chain tip, UTXO-set
// commitment, and mempool contents, sufficient to validate a restore without
// re-downloading the chain.
type Snapshot struct {
	ChainIDHex           string   `json:"chain_id_hex"`
	TipHashHex           string   `json:"tip_hash"`
	TipHeight            uint64   `json:"tip_height"`
	TipCumulativeWorkDec string   `json:"tip_cumulative_work"`
	UTXORootHex          string   `json:"utxo_root"`
	MempoolTxidsHex      []string `json:"mempool_txids,omitempty"`
	CreatedAtUnix        int64    `json:"created_at"`
}

func snapshotPath(dir string) string {
	return filepath.Join(dir, "SNAPSHOT.json")
}

// WriteSnapshotAtomic persists snap the same crash-safe way the chain
// manifest is written: write to a temp file, fsync it, rename into place,
// then fsync the containing directory so the rename itself is durable.
func WriteSnapshotAtomic(dir string, snap *Snapshot) error {
	if snap.CreatedAtUnix == 0 {
		snap.CreatedAtUnix = time.Now().Unix()
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindStorage, CodeSnapshotWrite, err, "marshaling snapshot")
	}
	b = append(b, '\n')

	final := snapshotPath(dir)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- path derived from operator-controlled datadir.
	if err != nil {
		return errs.Wrap(errs.KindStorage, CodeSnapshotWrite, err, "opening snapshot temp file")
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return errs.Wrap(errs.KindStorage, CodeSnapshotWrite, werr, "writing snapshot temp file")
	}
	if serr != nil {
		return errs.Wrap(errs.KindStorage, CodeSnapshotWrite, serr, "fsyncing snapshot temp file")
	}
	if cerr != nil {
		return errs.Wrap(errs.KindStorage, CodeSnapshotWrite, cerr, "closing snapshot temp file")
	}
	if err := os.Rename(tmp, final); err != nil {
		return errs.Wrap(errs.KindStorage, CodeSnapshotWrite, err, "renaming snapshot into place")
	}

	d, err := os.Open(dir) // #nosec G304 -- dir derived from operator-controlled datadir.
	if err != nil {
		return errs.Wrap(errs.KindStorage, CodeSnapshotWrite, err, "opening snapshot dir for fsync")
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return errs.Wrap(errs.KindStorage, CodeSnapshotWrite, err, "fsyncing snapshot dir")
	}
	if err := d.Close(); err != nil {
		return errs.Wrap(errs.KindStorage, CodeSnapshotWrite, err, "closing snapshot dir")
	}
	return nil
}

// ReadSnapshot loads a previously written snapshot from dir.
func ReadSnapshot(dir string) (*Snapshot, error) {
	b, err := os.ReadFile(snapshotPath(dir)) // #nosec G304 -- path derived from operator-controlled datadir.
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, CodeSnapshotRead, err, "reading snapshot file")
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errs.Wrap(errs.KindStorage, CodeSnapshotRead, err, "unmarshaling snapshot")
	}
	return &s, nil
}

// PromoteStaging atomically swaps a validated staging directory into place
// as finalDir, the only point at which a restore becomes visible to the
// running node. Callers must have already run VerifyRestore successfully —
// PromoteStaging itself does not re-validate.
func PromoteStaging(stagingDir, finalDir string) error {
	backup := finalDir + ".prepromote"
	if _, err := os.Stat(finalDir); err == nil {
		if err := os.Rename(finalDir, backup); err != nil {
			return errs.Wrap(errs.KindStorage, CodePromoteFailed, err, "backing up existing chain dir before promotion")
		}
	}
	if err := os.Rename(stagingDir, finalDir); err != nil {
		if _, statErr := os.Stat(backup); statErr == nil {
			_ = os.Rename(backup, finalDir)
		}
		return errs.Wrap(errs.KindStorage, CodePromoteFailed, err, "renaming staging dir into place")
	}
	_ = os.RemoveAll(backup)
	return nil
}
