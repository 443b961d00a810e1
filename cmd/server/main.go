package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"

	"gardenperf.ai/internal/persistence/snapshot"
	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/sim/tuning"
	"gardenperf.ai/internal/sim/world"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		worldID      = flag.String("world", "sector_1", "world id")
		configDir    = flag.String("configs", "./configs", "config directory")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		settingsPath = flag.String("settings", "", "path to settings.yaml (default: <configs>/settings.yaml)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite index")
		disabled     = flag.Bool("disabled", false, "start with request handling disabled")

		snapPath      = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest    = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		snapshotEvery = flag.Int("snapshot_every", 600, "ticks between snapshots (0 disables periodic snapshots)")
		snapshotKeep  = flag.Int("snapshot_keep", 24, "snapshots to keep on disk")
		profileMode   = flag.String("profile", "", "write a profile to the data dir: cpu|mem|block|mutex")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if p := startProfile(*profileMode, *dataDir); p != nil {
		defer p.Stop()
	}

	envCfg, err := parseEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	sp := strings.TrimSpace(*settingsPath)
	if sp == "" {
		sp = filepath.Join(*configDir, "settings.yaml")
	}
	settings, err := tuning.Load(sp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load settings: %v", err)
		}
		logger.Printf("settings not found (%s); using defaults", sp)
		settings = tuning.Defaults()
	}
	if *disabled {
		settings.Disabled = true
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	schemas, err := protocol.CompileHostSchemas()
	if err != nil {
		logger.Fatalf("compile host schemas: %v", err)
	}

	w, err := world.New(world.WorldConfig{
		ID:                 *worldID,
		Settings:           settings,
		SnapshotEveryTicks: *snapshotEvery,
		Logger:             log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(worldDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		if *disabled {
			w.Server().SetDisabled(true)
		}
		logger.Printf("resumed from snapshot=%s tick=%d concealed=%d", filepath.Base(snapshotToLoad), w.CurrentTick(), len(snap.Concealed))
	}

	s, err := openSinks(envCfg, *dataDir, worldDir, *worldID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("sinks: %v", err)
	}
	defer s.Close()
	s.attach(w, logger)

	ctx, cancel := signalContext()
	defer cancel()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case snap := <-snapCh:
						writeSnapshot(worldDir, snap, *snapshotKeep, s, logger)
					default:
						return
					}
				}
			case snap := <-snapCh:
				writeSnapshot(worldDir, snap, *snapshotKeep, s, logger)
			}
		}
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	router := newRouter(w, routerConfig{
		EnableAdmin:     envCfg.adminEnabled(),
		EnablePprof:     envCfg.EnablePprofHTTP,
		AllowRemoteHost: envCfg.AllowRemoteHost,
		HostSchemas:     schemas,
		Sinks:           s,
	}, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (world=%s tick_rate=%dHz)", *addr, *worldID, settings.TickRateHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone
	<-snapDone

	// The loop has stopped, so the final state can be read directly.
	writeSnapshot(worldDir, w.ExportSnapshot(), *snapshotKeep, s, logger)
}

func writeSnapshot(worldDir string, snap snapshot.SnapshotV1, keep int, s *sinks, logger *log.Logger) {
	path := snapshot.PathFor(worldDir, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	if s != nil && s.mirror != nil {
		s.mirror.Enqueue(path)
	}
	if keep > 0 {
		if err := snapshot.Prune(worldDir, keep); err != nil {
			logger.Printf("snapshot prune: %v", err)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func startProfile(mode, dataDir string) interface{ Stop() } {
	opts := []func(*profile.Profile){profile.ProfilePath(filepath.Join(dataDir, "profile")), profile.NoShutdownHook}
	switch mode {
	case "":
		return nil
	case "cpu":
		opts = append(opts, profile.CPUProfile)
	case "mem":
		opts = append(opts, profile.MemProfileAllocs)
	case "block":
		opts = append(opts, profile.BlockProfile)
	case "mutex":
		opts = append(opts, profile.MutexProfile)
	default:
		log.Fatalf("unknown -profile %q", mode)
	}
	return profile.Start(opts...)
}
