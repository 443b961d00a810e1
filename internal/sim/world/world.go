package world

import (
	"io"
	"log"
	"sync/atomic"
	"time"

	"gardenperf.ai/internal/persistence/snapshot"
	"gardenperf.ai/internal/session"
	"gardenperf.ai/internal/sim/conceal"
	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/sector"
	"gardenperf.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID       string
	Settings tuning.Settings

	// SnapshotEveryTicks emits a snapshot to the sink; 0 disables.
	SnapshotEveryTicks int

	// HostQueue bounds the outbound command queue of the host session.
	HostQueue int

	Logger *log.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// PlayerJoinRequest attaches a player connection to the world.
type PlayerJoinRequest struct {
	SessionID string
	PlayerID  entity.PlayerID
	Out       chan []byte
}

// RequestEnvelope is one binary request frame from a player connection.
type RequestEnvelope struct {
	SessionID string
	Raw       []byte
}

type HostAttachRequest struct {
	SessionID string
	HostName  string
	Out       chan []byte
	Resp      chan HostAttachResponse
}

type HostAttachResponse struct {
	OK        bool
	Code      string
	Concealed []entity.ID
}

// HostEnvelope is one JSON text message from the host connection.
type HostEnvelope struct {
	SessionID string
	Type      string
	Raw       []byte
}

// World owns one sector and everything acting on it. All state must be
// accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	log      *log.Logger
	now      func() time.Time
	settings tuning.Settings

	tick atomic.Uint64

	sector  *sector.Revealed
	roster  *Roster
	conceal *conceal.Manager
	server  *session.Server

	clients map[string]*clientState
	host    *hostState

	playerJoin  chan PlayerJoinRequest
	playerLeave chan string
	inbox       chan RequestEnvelope
	hostAttach  chan HostAttachRequest
	hostLeave   chan string
	hostInbox   chan HostEnvelope
	snapshotReq chan snapshotReq
	stop        chan struct{}

	// Optional sinks (may be nil). Implemented in internal/persistence/* and
	// internal/eventbus.
	transitionSinks []TransitionSink
	eventSinks      []EventSink
	sessionSinks    []SessionSink

	snapshotSink chan<- snapshot.SnapshotV1

	pendingEvents []SectorEventRecord
	totals        TransitionTotals

	metrics atomic.Value
}

type clientState struct {
	PlayerID entity.PlayerID
	Out      chan []byte
	LoggedIn bool
}

type hostState struct {
	SessionID string
	Name      string
	Out       chan []byte

	// concealSent holds grids this host was told to conceal whose
	// ENTITY_REMOVED echo has not arrived yet.
	concealSent map[entity.ID]struct{}
}

func New(cfg WorldConfig) (*World, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.HostQueue <= 0 {
		cfg.HostQueue = 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	w := &World{
		cfg:         cfg,
		log:         logger,
		now:         now,
		settings:    cfg.Settings,
		roster:      NewRoster(),
		clients:     map[string]*clientState{},
		playerJoin:  make(chan PlayerJoinRequest, 64),
		playerLeave: make(chan string, 64),
		inbox:       make(chan RequestEnvelope, 1024),
		hostAttach:  make(chan HostAttachRequest, 4),
		hostLeave:   make(chan string, 4),
		hostInbox:   make(chan HostEnvelope, 4096),
		snapshotReq: make(chan snapshotReq, 1),
		stop:        make(chan struct{}),
	}
	w.sector = sector.New(sector.Options{
		Logger:           logger,
		Factions:         w.roster,
		VisibilityMeters: cfg.Settings.RevealVisibilityMeters,
	})
	w.conceal = conceal.NewManager(logger, w.sector, hostLink{w: w})
	w.server = session.NewServer(logger, session.Deps{
		Sector:   w.sector,
		Conceal:  w.conceal,
		Settings: w,
		Factions: w.roster,
	})
	w.sector.SubscribeAll(w.recordSectorEvent)
	w.publishMetrics(0)
	return w, nil
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int { return w.settings.TickRateHz }

func (w *World) PlayerJoin() chan<- PlayerJoinRequest { return w.playerJoin }
func (w *World) PlayerLeave() chan<- string           { return w.playerLeave }
func (w *World) Inbox() chan<- RequestEnvelope        { return w.inbox }
func (w *World) HostAttach() chan<- HostAttachRequest { return w.hostAttach }
func (w *World) HostLeave() chan<- string             { return w.hostLeave }
func (w *World) HostInbox() chan<- HostEnvelope       { return w.hostInbox }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Server is the request handler. Its disable toggle may be flipped from any
// goroutine.
func (w *World) Server() *session.Server { return w.server }

// Sector, Conceal and Roster expose the core for tests and in-process
// tools. They must only be used while the loop is not running.
func (w *World) Sector() *sector.Revealed  { return w.sector }
func (w *World) Conceal() *conceal.Manager { return w.conceal }
func (w *World) Roster() *Roster           { return w.roster }

func (w *World) AddTransitionSink(s TransitionSink) { w.transitionSinks = append(w.transitionSinks, s) }
func (w *World) AddEventSink(s EventSink)           { w.eventSinks = append(w.eventSinks, s) }
func (w *World) AddSessionSink(s SessionSink)       { w.sessionSinks = append(w.sessionSinks, s) }

// Settings and ChangeSetting implement session.SettingsStore.

func (w *World) Settings() tuning.Settings {
	s := w.settings
	if w.server != nil {
		s.Disabled = w.server.Disabled()
	}
	return s
}

func (w *World) ChangeSetting(name, value string) error {
	if err := w.settings.Set(name, value); err != nil {
		return err
	}
	w.sector.SetVisibility(w.settings.RevealVisibilityMeters)
	w.log.Printf("setting %s=%s", name, value)
	return nil
}
