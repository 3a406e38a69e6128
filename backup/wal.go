package backup

import "supernova.dev/node/errs"

const CodeWALReplayFailed errs.Code = "WAL_REPLAY_FAILED"

// WALEntry is one logged mutation pending replay against a recovered chain
// store (e.g. "apply block at height N", "undo block at height N").
type WALEntry struct {
	Sequence uint64
	Op       string
	Data     []byte
}

// ReplayWAL applies entries in sequence order via apply, stopping at and
// reporting the first failure rather than skipping ahead — a WAL with a gap
// or a corrupt entry must never be silently partially applied.
func ReplayWAL(entries []WALEntry, apply func(WALEntry) error) error {
	for i, e := range entries {
		if i > 0 && e.Sequence != entries[i-1].Sequence+1 {
			return errs.New(errs.KindStorage, CodeWALReplayFailed, "wal sequence gap before entry "+opLabel(e))
		}
		if err := apply(e); err != nil {
			return errs.Wrap(errs.KindStorage, CodeWALReplayFailed, err, "replaying wal entry "+opLabel(e))
		}
	}
	return nil
}

func opLabel(e WALEntry) string {
	return e.Op
}
