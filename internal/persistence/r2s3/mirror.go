package r2s3

import (
	"context"
	"errors"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Uploader is implemented by *Client.
type Uploader interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

// Object kinds, derived from the directory a file was written to.
const (
	KindTransitions = "transitions"
	KindEvents      = "events"
	KindSnapshot    = "snapshot"
	KindOther       = "other"
)

type MirrorConfig struct {
	// DataDir is the root object keys are made relative to.
	DataDir string
	Prefix  string

	Workers       int
	QueueCapacity int
	// EnqueueWait bounds how long Enqueue waits on a full queue.
	EnqueueWait time.Duration

	MaxAttempts int
	// Backoff between upload attempts; defaults to attempt² × 200ms.
	Backoff func(attempt int) time.Duration
	Timeout time.Duration

	Logger *log.Logger
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	Enqueued uint64
	Dropped  uint64
	Uploaded map[string]uint64
	Failed   map[string]uint64

	LastUpload time.Time
	LastError  string
}

type upload struct {
	local  string
	kind   string
	queued time.Time
}

// Mirror copies closed log files and snapshots to object storage in the
// background. The world loop only ever calls Enqueue.
type Mirror struct {
	up  Uploader
	cfg MirrorConfig

	queue chan upload
	wg    sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

func NewMirror(up Uploader, cfg MirrorConfig) *Mirror {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 2048
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = 25 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Backoff == nil {
		cfg.Backoff = func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 200 * time.Millisecond
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	cfg.Prefix = strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/")

	m := &Mirror{
		up:    up,
		cfg:   cfg,
		queue: make(chan upload, cfg.QueueCapacity),
		stats: Stats{Uploaded: map[string]uint64{}, Failed: map[string]uint64{}},
	}
	m.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go m.worker()
	}
	return m
}

// Enqueue schedules localPath for upload. Safe on a nil Mirror.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil || m.up == nil {
		return
	}
	u := upload{local: localPath, kind: kindOf(localPath), queued: time.Now()}

	m.mu.Lock()
	m.stats.Enqueued++
	m.mu.Unlock()

	t := time.NewTimer(m.cfg.EnqueueWait)
	defer t.Stop()
	select {
	case m.queue <- u:
	case <-t.C:
		m.mu.Lock()
		m.stats.Dropped++
		dropped := m.stats.Dropped
		m.mu.Unlock()
		m.printf("mirror: dropped %s (%s), queue full, %d dropped so far", localPath, u.kind, dropped)
	}
}

// Close drains the queue and waits for in-flight uploads.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.queue)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats
	st.QueueDepth = len(m.queue)
	st.QueueCapacity = cap(m.queue)
	st.Uploaded = make(map[string]uint64, len(m.stats.Uploaded))
	for k, v := range m.stats.Uploaded {
		st.Uploaded[k] = v
	}
	st.Failed = make(map[string]uint64, len(m.stats.Failed))
	for k, v := range m.stats.Failed {
		st.Failed[k] = v
	}
	return st
}

func (m *Mirror) worker() {
	defer m.wg.Done()
	for u := range m.queue {
		key, err := m.keyFor(u.local)
		if err != nil {
			m.printf("mirror: skip %s: %v", u.local, err)
			continue
		}
		err = m.put(key, u.local)

		m.mu.Lock()
		if err != nil {
			m.stats.Failed[u.kind]++
			m.stats.LastError = err.Error()
		} else {
			m.stats.Uploaded[u.kind]++
			m.stats.LastUpload = time.Now().UTC()
		}
		m.mu.Unlock()

		if err != nil {
			m.printf("mirror: %s failed after %d attempts: %v", key, m.cfg.MaxAttempts, err)
			continue
		}
		m.printf("mirror: %s uploaded (%s, waited %s)", key, u.kind, time.Since(u.queued).Round(time.Millisecond))
	}
}

func (m *Mirror) put(key, local string) error {
	var err error
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
		err = m.up.PutFile(ctx, key, local)
		cancel()
		if err == nil || attempt >= m.cfg.MaxAttempts {
			return err
		}
		time.Sleep(m.cfg.Backoff(attempt))
	}
}

// keyFor maps a file under DataDir to its object key.
func (m *Mirror) keyFor(local string) (string, error) {
	if local == "" {
		return "", errors.New("empty path")
	}
	if _, err := os.Stat(local); err != nil {
		return "", err
	}
	base, err := filepath.Abs(m.cfg.DataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(local)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.New("outside data dir " + base)
	}
	if m.cfg.Prefix == "" {
		return rel, nil
	}
	return path.Join(m.cfg.Prefix, rel), nil
}

func kindOf(local string) string {
	switch filepath.Base(filepath.Dir(local)) {
	case "transitions":
		return KindTransitions
	case "events":
		return KindEvents
	case "snapshots":
		return KindSnapshot
	}
	return KindOther
}

func (m *Mirror) printf(format string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Printf(format, args...)
	}
}
