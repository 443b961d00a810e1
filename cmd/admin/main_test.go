package main

import (
	"path/filepath"
	"testing"
	"time"

	persistlog "gardenperf.ai/internal/persistence/log"
	"gardenperf.ai/internal/sim/world"
)

func TestReadTransitions_FiltersAcrossFiles(t *testing.T) {
	worldDir := t.TempDir()
	l := persistlog.NewTransitionLogger(worldDir)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l.W.Now = func() time.Time { return now }

	write := func(tick uint64, id int64) {
		t.Helper()
		if err := l.WriteTransition(world.TransitionRecord{EventID: "e", Tick: tick, EntityID: id, Kind: "CONCEAL", Outcome: "DONE"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(1, 10)
	write(2, 11)
	now = now.Add(time.Hour)
	write(5, 10)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	all, err := readTransitions(worldDir, 0, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != 3 || all[2].Tick != 5 {
		t.Fatalf("all=%+v", all)
	}
	some, err := readTransitions(worldDir, 2, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(some) != 1 || some[0].Tick != 5 {
		t.Fatalf("filtered=%+v", some)
	}
	if _, err := readTransitions(filepath.Join(worldDir, "missing"), 0, 0); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
