package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"gardenperf.ai/internal/sim/world"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w := NewJSONLZstdWriter(dir, "x")
	w.Now = func() time.Time { return now }
	var rotated []string
	w.OnRotate = func(p string) { rotated = append(rotated, p) }

	if err := w.Write(map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := w.Path()
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"a": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(rotated) != 1 || rotated[0] != first {
		t.Fatalf("rotated=%v want [%s]", rotated, first)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rotated) != 2 {
		t.Fatalf("close should report the last file, got %v", rotated)
	}
	if filepath.Base(first) != "x-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first=%s", first)
	}
	if got := readLines(t, first); len(got) != 1 || got[0] != `{"a":1}` {
		t.Fatalf("lines=%v", got)
	}
}

func TestTransitionLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewTransitionLogger(dir)
	rec := world.TransitionRecord{EventID: "e1", WorldID: "w", Tick: 7, Kind: "CONCEAL", EntityID: 42, Outcome: "DONE"}
	if err := l.WriteTransition(rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	path := l.W.Path()
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("lines=%d", len(lines))
	}
	var got world.TransitionRecord
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EntityID != 42 || got.Tick != 7 || got.Kind != "CONCEAL" {
		t.Fatalf("got %+v", got)
	}
}

func TestEventLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	if err := l.WriteEvents(3, []world.SectorEventRecord{{Tick: 3, Kind: "ENTITY_ADDED", EntityID: 1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	path := l.W.Path()
	_ = l.Close()
	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("lines=%d", len(lines))
	}
	var got eventLine
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Tick != 3 || len(got.Events) != 1 || got.Events[0].Kind != "ENTITY_ADDED" {
		t.Fatalf("got %+v", got)
	}
}
