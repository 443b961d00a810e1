package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"gardenperf.ai/internal/persistence/r2s3"
	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/sim/world"
	"gardenperf.ai/internal/transport/host"
	"gardenperf.ai/internal/transport/ws"
)

type routerConfig struct {
	EnableAdmin     bool
	EnablePprof     bool
	AllowRemoteHost bool
	HostSchemas     *protocol.HostSchemas
	Sinks           *sinks
}

func newRouter(w *world.World, cfg routerConfig, logger *log.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/metrics", metricsHandler(w, cfg.Sinks)).Methods(http.MethodGet)

	r.HandleFunc("/v1/conceal", ws.NewServer(w, logger).Handler())
	hostSrv := host.NewServer(w, logger, cfg.HostSchemas)
	hostSrv.AllowRemote = cfg.AllowRemoteHost
	r.HandleFunc("/v1/host", hostSrv.WSHandler())

	if cfg.EnableAdmin {
		admin := r.PathPrefix("/admin/v1").Subrouter()
		admin.Use(loopbackOnly)
		admin.HandleFunc("/state", func(rw http.ResponseWriter, r *http.Request) {
			writeJSON(rw, http.StatusOK, struct {
				WorldID  string             `json:"world_id"`
				Tick     uint64             `json:"tick"`
				Disabled bool               `json:"disabled"`
				Metrics  world.WorldMetrics `json:"metrics"`
			}{
				WorldID:  w.ID(),
				Tick:     w.CurrentTick(),
				Disabled: w.Server().Disabled(),
				Metrics:  w.Metrics(),
			})
		}).Methods(http.MethodGet)
		admin.HandleFunc("/{action:disable|enable}", func(rw http.ResponseWriter, r *http.Request) {
			disabled := mux.Vars(r)["action"] == "disable"
			w.Server().SetDisabled(disabled)
			logger.Printf("admin: disabled=%v", disabled)
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "disabled": disabled})
		}).Methods(http.MethodPost)
		admin.HandleFunc("/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			tick, err := w.RequestSnapshot(ctx)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
		}).Methods(http.MethodPost)
	} else {
		logger.Printf("admin endpoints disabled (GP_ENABLE_ADMIN_HTTP=false)")
	}

	if cfg.EnablePprof {
		dbg := r.PathPrefix("/debug/pprof").Subrouter()
		dbg.Use(loopbackOnly)
		dbg.HandleFunc("/cmdline", pprof.Cmdline)
		dbg.HandleFunc("/profile", pprof.Profile)
		dbg.HandleFunc("/symbol", pprof.Symbol)
		dbg.HandleFunc("/trace", pprof.Trace)
		dbg.PathPrefix("/").HandlerFunc(pprof.Index)
	}
	return r
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func metricsHandler(w *world.World, s *sinks) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()
		id := w.ID()

		gauge := func(name, help string, v any) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
			fmt.Fprintf(rw, "%s{world=%q} %v\n", name, id, v)
		}
		gauge("gardenperf_world_tick", "Current world tick.", m.Tick)
		gauge("gardenperf_sector_entities", "Tracked entities in the revealed sector.", m.Entities)
		gauge("gardenperf_sector_observers", "Observing entities.", m.Observers)
		gauge("gardenperf_sector_revealed_grids", "Revealed grids.", m.RevealedGrids)
		gauge("gardenperf_concealed_grids", "Concealed grids.", m.ConcealedGrids)
		gauge("gardenperf_active_players", "Logged-in players.", m.ActivePlayers)
		gauge("gardenperf_spawn_owners", "Players needing spawn protection.", m.SpawnOwners)
		gauge("gardenperf_clients", "Connected player sessions.", m.Clients)
		gauge("gardenperf_host_attached", "1 when a host simulation is attached.", boolGauge(m.HostAttached))
		gauge("gardenperf_world_step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))

		fmt.Fprintf(rw, "# HELP gardenperf_queued_transitions Queued transitions by kind.\n")
		fmt.Fprintf(rw, "# TYPE gardenperf_queued_transitions gauge\n")
		fmt.Fprintf(rw, "gardenperf_queued_transitions{world=%q,kind=%q} %d\n", id, "conceal", m.QueuedConceals)
		fmt.Fprintf(rw, "gardenperf_queued_transitions{world=%q,kind=%q} %d\n", id, "reveal", m.QueuedReveals)

		fmt.Fprintf(rw, "# HELP gardenperf_transitions_total Processed transitions by outcome.\n")
		fmt.Fprintf(rw, "# TYPE gardenperf_transitions_total counter\n")
		fmt.Fprintf(rw, "gardenperf_transitions_total{world=%q,outcome=%q} %d\n", id, "concealed", m.Totals.Concealed)
		fmt.Fprintf(rw, "gardenperf_transitions_total{world=%q,outcome=%q} %d\n", id, "revealed", m.Totals.Revealed)
		fmt.Fprintf(rw, "gardenperf_transitions_total{world=%q,outcome=%q} %d\n", id, "skipped", m.Totals.Skipped)
		fmt.Fprintf(rw, "gardenperf_transitions_total{world=%q,outcome=%q} %d\n", id, "failed", m.Totals.Failed)

		fmt.Fprintf(rw, "# HELP gardenperf_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE gardenperf_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "gardenperf_world_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "gardenperf_world_queue_depth{world=%q,queue=%q} %d\n", id, "host_inbox", m.QueueDepths.HostInbox)
		fmt.Fprintf(rw, "gardenperf_world_queue_depth{world=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "gardenperf_world_queue_depth{world=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)

		if s == nil {
			return
		}
		if s.index != nil {
			st := s.index.Stats()
			fmt.Fprintf(rw, "# HELP gardenperf_index_dropped_total Index writes dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE gardenperf_index_dropped_total counter\n")
			fmt.Fprintf(rw, "gardenperf_index_dropped_total{kind=%q} %d\n", "transition", st.DropTransitions)
			fmt.Fprintf(rw, "gardenperf_index_dropped_total{kind=%q} %d\n", "session", st.DropSessions)
		}
		if s.bus != nil {
			st := s.bus.Stats()
			fmt.Fprintf(rw, "# HELP gardenperf_eventbus_events_total Event bus publish results.\n")
			fmt.Fprintf(rw, "# TYPE gardenperf_eventbus_events_total counter\n")
			fmt.Fprintf(rw, "gardenperf_eventbus_events_total{result=%q} %d\n", "published", st.Published)
			fmt.Fprintf(rw, "gardenperf_eventbus_events_total{result=%q} %d\n", "dropped", st.Dropped)
			fmt.Fprintf(rw, "gardenperf_eventbus_events_total{result=%q} %d\n", "failed", st.Failed)
		}
		if s.mirror != nil {
			st := s.mirror.Stats()
			fmt.Fprintf(rw, "# HELP gardenperf_mirror_queue_depth Current mirror queue depth.\n")
			fmt.Fprintf(rw, "# TYPE gardenperf_mirror_queue_depth gauge\n")
			fmt.Fprintf(rw, "gardenperf_mirror_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP gardenperf_mirror_dropped_total Files not mirrored because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE gardenperf_mirror_dropped_total counter\n")
			fmt.Fprintf(rw, "gardenperf_mirror_dropped_total %d\n", st.Dropped)
			fmt.Fprintf(rw, "# HELP gardenperf_mirror_uploads_total Mirror upload results by object kind.\n")
			fmt.Fprintf(rw, "# TYPE gardenperf_mirror_uploads_total counter\n")
			for _, kind := range []string{r2s3.KindTransitions, r2s3.KindEvents, r2s3.KindSnapshot, r2s3.KindOther} {
				fmt.Fprintf(rw, "gardenperf_mirror_uploads_total{kind=%q,result=%q} %d\n", kind, "success", st.Uploaded[kind])
				fmt.Fprintf(rw, "gardenperf_mirror_uploads_total{kind=%q,result=%q} %d\n", kind, "fail", st.Failed[kind])
			}
		}
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
