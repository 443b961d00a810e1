package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gardenperf.ai/internal/sim/tuning"
	"gardenperf.ai/internal/sim/world"
)

// SQLiteIndex is a query-friendly secondary index of transitions and
// sessions. Writes are queued and applied by a single writer goroutine; the
// JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db  *sql.DB
	log *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTransitions atomic.Uint64
	dropSessions    atomic.Uint64
}

type reqKind int

const (
	reqTransition reqKind = iota + 1
	reqSession
)

type req struct {
	kind reqKind

	transition world.TransitionRecord
	session    world.SessionRecord
}

// Stats reports queue pressure on the writer.
type Stats struct {
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	DropTransitions uint64 `json:"drop_transitions_total"`
	DropSessions    uint64 `json:"drop_sessions_total"`
}

// OpenSQLite opens or creates the index at path. Rows the writer fails to
// store are counted as drops and logged to logger, which may be nil.
func OpenSQLite(path string, logger *log.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &SQLiteIndex{
		db:  db,
		log: logger,
		ch:  make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			world_id TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			event_id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			display_name TEXT,
			owner_id INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_tick ON transitions(tick);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_entity_tick ON transitions(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT NOT NULL,
			event TEXT NOT NULL,
			world_id TEXT NOT NULL,
			role TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			host_name TEXT,
			tick INTEGER NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (session_id, event)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_player ON sessions(player_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB exposes the handle for read-only queries.
func (s *SQLiteIndex) DB() *sql.DB { return s.db }

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropTransitions: s.dropTransitions.Load(),
		DropSessions:    s.dropSessions.Load(),
	}
}

func (s *SQLiteIndex) WriteTransition(rec world.TransitionRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTransition, transition: rec}:
	default:
		// Drop if the indexer falls behind.
		s.dropTransitions.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteSession(rec world.SessionRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqSession, session: rec}:
	default:
		s.dropSessions.Add(1)
	}
	return nil
}

// UpsertSettings stores the settings a world runs with.
func (s *SQLiteIndex) UpsertSettings(worldID string, set tuning.Settings) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(set)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO settings(world_id,digest,json,updated_at) VALUES(?,?,?,?)`, worldID, digest, string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

var insertSQL = map[reqKind]string{
	reqTransition: `INSERT OR REPLACE INTO transitions(event_id,world_id,tick,kind,entity_id,display_name,owner_id,outcome,reason,at) VALUES(?,?,?,?,?,?,?,?,?,?)`,
	reqSession:    `INSERT OR REPLACE INTO sessions(session_id,event,world_id,role,player_id,host_name,tick,at) VALUES(?,?,?,?,?,?,?,?)`,
}

func (r req) args() []any {
	switch r.kind {
	case reqTransition:
		t := r.transition
		return []any{t.EventID, t.WorldID, int64(t.Tick), t.Kind, t.EntityID, t.DisplayName, t.OwnerID, t.Outcome, t.Reason, t.At.UTC().Format(time.RFC3339Nano)}
	case reqSession:
		se := r.session
		return []any{se.SessionID, se.Event, se.WorldID, se.Role, se.PlayerID, se.HostName, int64(se.Tick), se.At.UTC().Format(time.RFC3339Nano)}
	}
	return nil
}

func (k reqKind) String() string {
	switch k {
	case reqTransition:
		return "transition"
	case reqSession:
		return "session"
	}
	return "unknown"
}

// dropped counts n rows of kind that never reached the database.
func (s *SQLiteIndex) dropped(kind reqKind, n int, err error) {
	if n <= 0 {
		return
	}
	switch kind {
	case reqTransition:
		s.dropTransitions.Add(uint64(n))
	case reqSession:
		s.dropSessions.Add(uint64(n))
	}
	s.log.Printf("indexdb: dropped %d %s rows: %v", n, kind, err)
}

// batch groups queued writes into one transaction.
type batch struct {
	idx   *SQLiteIndex
	stmts map[reqKind]*sql.Stmt

	tx      *sql.Tx
	pending map[reqKind]int
	n       int
	started time.Time
}

const (
	batchMaxOps  = 500
	batchMaxWait = time.Second
)

var errNoStatement = errors.New("insert statement not prepared")

func newBatch(idx *SQLiteIndex) *batch {
	b := &batch{idx: idx, stmts: make(map[reqKind]*sql.Stmt, len(insertSQL)), pending: map[reqKind]int{}}
	for kind, q := range insertSQL {
		st, err := idx.db.Prepare(q)
		if err != nil {
			idx.log.Printf("indexdb: prepare %s insert: %v", kind, err)
			continue
		}
		b.stmts[kind] = st
	}
	return b
}

func (b *batch) close() {
	for _, st := range b.stmts {
		_ = st.Close()
	}
}

func (b *batch) add(r req) {
	stmt := b.stmts[r.kind]
	if stmt == nil {
		b.idx.dropped(r.kind, 1, errNoStatement)
		return
	}
	if b.tx == nil {
		tx, err := b.idx.db.BeginTx(context.Background(), nil)
		if err != nil {
			b.idx.dropped(r.kind, 1, fmt.Errorf("begin: %w", err))
			time.Sleep(50 * time.Millisecond)
			return
		}
		b.tx, b.n, b.started = tx, 0, time.Now()
	}
	b.pending[r.kind]++
	b.n++
	if _, err := b.tx.Stmt(stmt).Exec(r.args()...); err != nil {
		_ = b.tx.Rollback()
		b.fail(fmt.Errorf("insert %s: %w", r.kind, err))
	}
}

// fail drops every row of the current transaction.
func (b *batch) fail(err error) {
	for kind, n := range b.pending {
		b.idx.dropped(kind, n, err)
	}
	b.reset()
}

func (b *batch) reset() {
	b.tx = nil
	b.n = 0
	clear(b.pending)
}

func (b *batch) due(idle bool) bool {
	return b.tx != nil && (idle || b.n >= batchMaxOps || time.Since(b.started) >= batchMaxWait)
}

func (b *batch) commit() {
	if b.tx == nil {
		return
	}
	if err := b.tx.Commit(); err != nil {
		b.fail(fmt.Errorf("commit: %w", err))
		return
	}
	b.reset()
}

func (s *SQLiteIndex) loop() {
	b := newBatch(s)
	defer b.close()
	for r := range s.ch {
		b.add(r)
		if b.due(len(s.ch) == 0) {
			b.commit()
		}
	}
	b.commit()
}
