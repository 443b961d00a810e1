package indexdb

import (
	"context"
	"database/sql"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"gardenperf.ai/internal/sim/tuning"
	"gardenperf.ai/internal/sim/world"
)

func TestSQLiteIndex_TransitionsAndSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []world.TransitionRecord{
		{EventID: "e1", WorldID: "w1", Tick: 10, Kind: "CONCEAL", EntityID: 7, DisplayName: "Rover", OwnerID: 1, Outcome: "DONE", At: at},
		{EventID: "e2", WorldID: "w1", Tick: 20, Kind: "REVEAL", EntityID: 7, DisplayName: "Rover", OwnerID: 1, Outcome: "DONE", At: at.Add(time.Second)},
		{EventID: "e3", WorldID: "w1", Tick: 21, Kind: "CONCEAL", EntityID: 8, Outcome: "SKIPPED", Reason: "CONTROLLED", At: at.Add(2 * time.Second)},
	}
	for _, r := range recs {
		if err := idx.WriteTransition(r); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = idx.WriteSession(world.SessionRecord{WorldID: "w1", SessionID: "s1", Role: world.RolePlayer, Event: world.SessionConnect, PlayerID: 5, Tick: 1, At: at})
	_ = idx.WriteSession(world.SessionRecord{WorldID: "w1", SessionID: "h1", Role: world.RoleHost, Event: world.SessionConnect, HostName: "host-1", Tick: 1, At: at})
	if err := idx.UpsertSettings("w1", tuning.Defaults()); err != nil {
		t.Fatalf("settings: %v", err)
	}

	// Close drains the writer; reopen the file read-only through a fresh index.
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	idx, err = OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	all, err := ListTransitions(ctx, idx.DB(), TransitionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].EventID != "e3" {
		t.Fatalf("all=%+v", all)
	}
	if all[0].Reason != "CONTROLLED" {
		t.Fatalf("reason=%q", all[0].Reason)
	}

	byEntity, err := ListTransitions(ctx, idx.DB(), TransitionFilter{EntityID: 7, Kind: "conceal"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byEntity) != 1 || byEntity[0].EventID != "e1" {
		t.Fatalf("byEntity=%+v", byEntity)
	}

	sessions, err := ListSessions(ctx, idx.DB(), 5, 10)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s1" || sessions[0].Role != world.RolePlayer {
		t.Fatalf("sessions=%+v", sessions)
	}
	everyone, _ := ListSessions(ctx, idx.DB(), 0, 10)
	if len(everyone) != 2 {
		t.Fatalf("everyone=%d", len(everyone))
	}

	var digest string
	if err := idx.DB().QueryRow(`SELECT digest FROM settings WHERE world_id='w1'`).Scan(&digest); err != nil {
		t.Fatalf("settings row: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("digest=%q", digest)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTransition}

	_ = s.WriteTransition(world.TransitionRecord{EventID: "x"})
	_ = s.WriteSession(world.SessionRecord{SessionID: "x"})

	st := s.Stats()
	if st.DropTransitions != 1 || st.DropSessions != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_ClosedIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTransition(world.TransitionRecord{}); err != nil {
		t.Fatalf("nil index: %v", err)
	}
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("nil stats=%+v", st)
	}
}

func TestSQLiteIndex_FailedWritesCountAsDrops(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "world.sqlite"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	b := newBatch(idx)
	defer b.close()
	if _, err := idx.DB().Exec(`DROP TABLE sessions`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	// The session insert fails and takes the transition already in the
	// transaction with it.
	b.add(req{kind: reqTransition, transition: world.TransitionRecord{EventID: "e1", Kind: "CONCEAL"}})
	b.add(req{kind: reqSession, session: world.SessionRecord{SessionID: "s1", Event: world.SessionConnect}})
	b.commit()

	st := idx.Stats()
	if st.DropTransitions != 1 || st.DropSessions != 1 {
		t.Fatalf("drops=%+v", st)
	}
	rows, err := ListTransitions(context.Background(), idx.DB(), TransitionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rolled back rows visible: %+v", rows)
	}
}

func TestSQLiteIndex_MissingStatementCountsAsDrop(t *testing.T) {
	s := &SQLiteIndex{log: log.New(io.Discard, "", 0)}
	b := &batch{idx: s, stmts: map[reqKind]*sql.Stmt{}, pending: map[reqKind]int{}}
	b.add(req{kind: reqTransition})
	if st := s.Stats(); st.DropTransitions != 1 {
		t.Fatalf("drops=%+v", st)
	}
}
