package backup

import "testing"

func TestReplayWALAppliesInOrder(t *testing.T) {
	entries := []WALEntry{
		{Sequence: 1, Op: "apply-block-1"},
		{Sequence: 2, Op: "apply-block-2"},
		{Sequence: 3, Op: "apply-block-3"},
	}
	var applied []string
	err := ReplayWAL(entries, func(e WALEntry) error {
		applied = append(applied, e.Op)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 3 {
		t.Fatalf("expected 3 entries applied, got %d", len(applied))
	}
}

func TestReplayWALStopsAtFirstFailure(t *testing.T) {
	entries := []WALEntry{
		{Sequence: 1, Op: "ok"},
		{Sequence: 2, Op: "bad"},
		{Sequence: 3, Op: "never-reached"},
	}
	var applied []string
	err := ReplayWAL(entries, func(e WALEntry) error {
		applied = append(applied, e.Op)
		if e.Op == "bad" {
			return errTest
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected replay to fail")
	}
	if len(applied) != 2 {
		t.Fatalf("expected replay to stop after the failing entry, applied %v", applied)
	}
}

func TestReplayWALRejectsSequenceGap(t *testing.T) {
	entries := []WALEntry{
		{Sequence: 1, Op: "ok"},
		{Sequence: 3, Op: "gap"},
	}
	if err := ReplayWAL(entries, func(WALEntry) error { return nil }); err == nil {
		t.Fatal("expected gap detection to fail replay")
	}
}

type testError string

func (e testError) Error() string { return string(e) }

var errTest = testError("boom")
