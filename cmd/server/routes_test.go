package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gardenperf.ai/internal/persistence/snapshot"
	"gardenperf.ai/internal/sim/tuning"
	"gardenperf.ai/internal/sim/world"
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "sector_test", Settings: tuning.Defaults()})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func doRequest(t *testing.T, h http.Handler, method, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	w := newTestWorld(t)
	r := newRouter(w, routerConfig{EnableAdmin: true}, log.New(io.Discard, "", 0))

	rec := doRequest(t, r, http.MethodGet, "/healthz", "")
	if rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, r, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{
		`gardenperf_world_tick{world="sector_test"} 0`,
		`gardenperf_host_attached{world="sector_test"} 0`,
		`gardenperf_queued_transitions{world="sector_test",kind="conceal"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestRouter_AdminDisableEnable(t *testing.T) {
	w := newTestWorld(t)
	r := newRouter(w, routerConfig{EnableAdmin: true}, log.New(io.Discard, "", 0))

	rec := doRequest(t, r, http.MethodPost, "/admin/v1/disable", "127.0.0.1:5000")
	if rec.Code != 200 {
		t.Fatalf("disable: %d", rec.Code)
	}
	if !w.Server().Disabled() {
		t.Fatalf("expected disabled")
	}

	rec = doRequest(t, r, http.MethodGet, "/admin/v1/state", "[::1]:5000")
	var st struct {
		WorldID  string `json:"world_id"`
		Disabled bool   `json:"disabled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("state: %v (%s)", err, rec.Body.String())
	}
	if st.WorldID != "sector_test" || !st.Disabled {
		t.Fatalf("state=%+v", st)
	}

	rec = doRequest(t, r, http.MethodPost, "/admin/v1/enable", "127.0.0.1:5000")
	if rec.Code != 200 || w.Server().Disabled() {
		t.Fatalf("enable: code=%d disabled=%v", rec.Code, w.Server().Disabled())
	}

	rec = doRequest(t, r, http.MethodGet, "/admin/v1/disable", "127.0.0.1:5000")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET disable: %d", rec.Code)
	}
}

func TestRouter_AdminSnapshot(t *testing.T) {
	w := newTestWorld(t)
	snaps := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(snaps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	r := newRouter(w, routerConfig{EnableAdmin: true}, log.New(io.Discard, "", 0))
	rec := doRequest(t, r, http.MethodPost, "/admin/v1/snapshot", "127.0.0.1:5000")
	if rec.Code != 200 {
		t.Fatalf("snapshot: %d %s", rec.Code, rec.Body.String())
	}
	select {
	case snap := <-snaps:
		if snap.Header.WorldID != "sector_test" {
			t.Fatalf("world id=%q", snap.Header.WorldID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot delivered")
	}

	// Sink is full now.
	snaps <- snapshot.SnapshotV1{}
	rec = doRequest(t, r, http.MethodPost, "/admin/v1/snapshot", "127.0.0.1:5000")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("busy sink: %d", rec.Code)
	}
}

func TestRouter_AdminRejectsRemote(t *testing.T) {
	w := newTestWorld(t)
	r := newRouter(w, routerConfig{EnableAdmin: true}, log.New(io.Discard, "", 0))
	rec := doRequest(t, r, http.MethodPost, "/admin/v1/disable", "10.0.0.5:4000")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code=%d", rec.Code)
	}
	if w.Server().Disabled() {
		t.Fatalf("remote request must not disable the server")
	}
}

func TestRouter_AdminOff(t *testing.T) {
	w := newTestWorld(t)
	r := newRouter(w, routerConfig{}, log.New(io.Discard, "", 0))
	rec := doRequest(t, r, http.MethodGet, "/admin/v1/state", "127.0.0.1:5000")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestRouter_PlayerEndpointRequiresPlayerID(t *testing.T) {
	w := newTestWorld(t)
	r := newRouter(w, routerConfig{}, log.New(io.Discard, "", 0))
	rec := doRequest(t, r, http.MethodGet, "/v1/conceal", "127.0.0.1:5000")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestRouter_HostEndpointLoopbackOnly(t *testing.T) {
	w := newTestWorld(t)
	r := newRouter(w, routerConfig{}, log.New(io.Discard, "", 0))
	rec := doRequest(t, r, http.MethodGet, "/v1/host", "10.0.0.5:4000")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestEnvConfig(t *testing.T) {
	t.Setenv("DEPLOY_ENV", "production")
	t.Setenv("GP_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("GP_S3_MIRROR", "true")
	t.Setenv("GP_S3_BUCKET", "logs")
	cfg, err := parseEnv()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.adminEnabled() {
		t.Fatalf("admin should default off in production")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers=%v", cfg.KafkaBrokers)
	}
	if !cfg.Mirror.Enabled || cfg.Mirror.Bucket != "logs" || cfg.Mirror.Workers != 2 {
		t.Fatalf("mirror=%+v", cfg.Mirror)
	}
	if cfg.IndexBackend != "sqlite" {
		t.Fatalf("index backend=%q", cfg.IndexBackend)
	}

	t.Setenv("GP_ENABLE_ADMIN_HTTP", "true")
	cfg, err = parseEnv()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.adminEnabled() {
		t.Fatalf("explicit GP_ENABLE_ADMIN_HTTP=true should win")
	}
}

func TestOpenSinks_MirrorNeedsCredentials(t *testing.T) {
	dir := t.TempDir()
	cfg := envConfig{Mirror: mirrorEnv{Enabled: true, Bucket: "b"}}
	if _, err := openSinks(cfg, dir, dir, "w", true, log.New(io.Discard, "", 0)); err == nil {
		t.Fatalf("expected error")
	}
}
