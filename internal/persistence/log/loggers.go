package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gardenperf.ai/internal/sim/world"
)

// JSONLZstdWriter appends JSON lines to hourly zstd-compressed files under
// baseDir. Files are named <prefix>-YYYY-MM-DD-HH.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	// OnRotate is called with the path of a file once it has been closed.
	OnRotate func(path string)
	// Now defaults to time.Now.
	Now func() time.Time

	mu      sync.Mutex
	curHour string
	curPath string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		Now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Path returns the file currently being written, or "" before the first write.
func (w *JSONLZstdWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.curPath
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	w.curPath = path
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	if w.curPath != "" && w.OnRotate != nil {
		w.OnRotate(w.curPath)
	}
	w.curPath = ""
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TransitionLogger writes one JSONL entry per processed conceal or reveal.
type TransitionLogger struct{ W *JSONLZstdWriter }

func NewTransitionLogger(worldDir string) *TransitionLogger {
	return &TransitionLogger{W: NewJSONLZstdWriter(filepath.Join(worldDir, "transitions"), "transitions")}
}

func (l *TransitionLogger) WriteTransition(v world.TransitionRecord) error { return l.W.Write(v) }
func (l *TransitionLogger) Close() error                                  { return l.W.Close() }

// EventLogger writes the sector's debug events, one line per tick that had any.
type EventLogger struct{ W *JSONLZstdWriter }

type eventLine struct {
	Tick   uint64                    `json:"tick"`
	Events []world.SectorEventRecord `json:"events"`
}

func NewEventLogger(worldDir string) *EventLogger {
	return &EventLogger{W: NewJSONLZstdWriter(filepath.Join(worldDir, "events"), "events")}
}

func (l *EventLogger) WriteEvents(tick uint64, events []world.SectorEventRecord) error {
	return l.W.Write(eventLine{Tick: tick, Events: events})
}
func (l *EventLogger) Close() error { return l.W.Close() }
