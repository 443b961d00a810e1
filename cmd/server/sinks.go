package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"gardenperf.ai/internal/eventbus"
	"gardenperf.ai/internal/persistence/indexdb"
	persistlog "gardenperf.ai/internal/persistence/log"
	"gardenperf.ai/internal/persistence/r2s3"
	"gardenperf.ai/internal/sim/world"
)

// sinks owns every optional consumer of world records.
type sinks struct {
	transitions *persistlog.TransitionLogger
	events      *persistlog.EventLogger
	index       *indexdb.SQLiteIndex
	bus         *eventbus.Publisher
	mirror      *r2s3.Mirror
}

func openSinks(cfg envConfig, dataDir, worldDir, worldID string, disableDB bool, logger *log.Logger) (*sinks, error) {
	s := &sinks{
		transitions: persistlog.NewTransitionLogger(worldDir),
		events:      persistlog.NewEventLogger(worldDir),
	}

	if cfg.Mirror.Enabled {
		m := cfg.Mirror
		if m.Endpoint == "" || m.Bucket == "" || m.AccessKeyID == "" || m.SecretAccessKey == "" {
			return nil, fmt.Errorf("GP_S3_MIRROR=true but GP_S3_ENDPOINT/GP_S3_BUCKET/GP_S3_ACCESS_KEY_ID/GP_S3_SECRET_ACCESS_KEY are not fully set")
		}
		client, err := r2s3.New(m.Endpoint, m.Bucket, m.AccessKeyID, m.SecretAccessKey)
		if err != nil {
			return nil, err
		}
		s.mirror = r2s3.NewMirror(client, r2s3.MirrorConfig{
			DataDir: dataDir,
			Prefix:  m.Prefix,
			Workers: m.Workers,
			Logger:  logger,
		})
		s.transitions.W.OnRotate = s.mirror.Enqueue
		s.events.W.OnRotate = s.mirror.Enqueue
	}

	if !disableDB {
		switch strings.ToLower(strings.TrimSpace(cfg.IndexBackend)) {
		case "none", "off", "disabled":
		case "", "sqlite":
			idx, err := indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"), logger)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("open index: %w", err)
			}
			s.index = idx
		default:
			s.Close()
			return nil, fmt.Errorf("unsupported GP_INDEX_BACKEND: %s", cfg.IndexBackend)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		s.bus = eventbus.NewPublisher(cfg.KafkaBrokers, "gardenperf/"+worldID, logger)
	}
	return s, nil
}

func (s *sinks) attach(w *world.World, logger *log.Logger) {
	w.AddTransitionSink(s.transitions)
	w.AddEventSink(s.events)
	if s.index != nil {
		w.AddTransitionSink(s.index)
		w.AddSessionSink(s.index)
		if err := s.index.UpsertSettings(w.ID(), w.Settings()); err != nil {
			logger.Printf("index: upsert settings: %v", err)
		}
	}
	if s.bus != nil {
		w.AddTransitionSink(s.bus)
		w.AddSessionSink(s.bus)
	}
}

// Close flushes the logs first so their final files reach the mirror.
func (s *sinks) Close() {
	if s == nil {
		return
	}
	_ = s.transitions.Close()
	_ = s.events.Close()
	if s.index != nil {
		_ = s.index.Close()
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.mirror != nil {
		done := make(chan struct{})
		go func() {
			s.mirror.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(30 * time.Second):
		}
	}
}
