package protocol

// Host stream message types. The host is the simulation that owns the
// actual entities; it talks JSON text over its own websocket.
const (
	TypeHostHello            = "HOST_HELLO"
	TypeHostWelcome          = "HOST_WELCOME"
	TypeEntityAdded          = "ENTITY_ADDED"
	TypeEntityMoved          = "ENTITY_MOVED"
	TypeEntityRemoved        = "ENTITY_REMOVED"
	TypeFactionRoster        = "FACTION_ROSTER"
	TypePlayerFactionChanged = "PLAYER_FACTION_CHANGED"
	TypePlayerLogin          = "PLAYER_LOGIN"
	TypePlayerLogout         = "PLAYER_LOGOUT"

	// Server -> host.
	TypeConcealCmd = "CONCEAL"
	TypeRevealCmd  = "REVEAL"
	TypeHostError  = "ERROR"
)

// Capability names used on the host stream.
const (
	CapObservable   = "OBSERVABLE"
	CapObserving    = "OBSERVING"
	CapGrid         = "GRID"
	CapControllable = "CONTROLLABLE"
)

type Box struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// HOST_HELLO (host -> server)
type HostHelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	HostName        string `json:"host_name"`
}

// HOST_WELCOME (server -> host)
type HostWelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	// Concealed lists grids the server still holds concealed; the host must
	// not simulate them.
	Concealed []int64 `json:"concealed,omitempty"`
}

// ENTITY_ADDED (host -> server)
type EntityAddedMsg struct {
	Type           string     `json:"type"`
	EntityID       int64      `json:"entity_id"`
	DisplayName    string     `json:"display_name,omitempty"`
	Caps           []string   `json:"caps"`
	Pos            [3]float64 `json:"pos"`
	Bounds         Box        `json:"bounds"`
	OwnerID        int64      `json:"owner_id,omitempty"`
	RevealBlocked  bool       `json:"reveal_blocked,omitempty"`
	InsideAsteroid bool       `json:"inside_asteroid,omitempty"`
}

// ENTITY_MOVED (host -> server). Nil flags leave the stored value alone.
type EntityMovedMsg struct {
	Type           string     `json:"type"`
	EntityID       int64      `json:"entity_id"`
	Pos            [3]float64 `json:"pos"`
	Bounds         Box        `json:"bounds"`
	Speed          float64    `json:"speed"`
	RevealBlocked  *bool      `json:"reveal_blocked,omitempty"`
	InsideAsteroid *bool      `json:"inside_asteroid,omitempty"`
}

// ENTITY_REMOVED (host -> server). For a concealed grid the first report
// after CONCEAL is a confirmation; otherwise the grid is deleted.
type EntityRemovedMsg struct {
	Type     string `json:"type"`
	EntityID int64  `json:"entity_id"`
}

type Faction struct {
	FactionID int64   `json:"faction_id"`
	Members   []int64 `json:"members"`
}

// FACTION_ROSTER (host -> server) replaces the whole roster.
type FactionRosterMsg struct {
	Type     string    `json:"type"`
	Factions []Faction `json:"factions"`
}

// PLAYER_FACTION_CHANGED (host -> server)
type PlayerFactionChangedMsg struct {
	Type     string `json:"type"`
	PlayerID int64  `json:"player_id"`
	From     int64  `json:"from"`
	To       int64  `json:"to"`
}

// PLAYER_LOGIN / PLAYER_LOGOUT (host -> server)
type PlayerSessionMsg struct {
	Type      string `json:"type"`
	PlayerID  int64  `json:"player_id"`
	FactionID int64  `json:"faction_id,omitempty"`
}

// CONCEAL (server -> host). The host removes the grid from simulation. It
// may answer with one ENTITY_REMOVED for the id, which the server treats as
// confirmation; a further ENTITY_REMOVED deletes the concealed grid for good.
type ConcealCmdMsg struct {
	Type     string `json:"type"`
	EntityID int64  `json:"entity_id"`
}

// REVEAL (server -> host)
type RevealCmdMsg struct {
	Type        string     `json:"type"`
	EntityID    int64      `json:"entity_id"`
	DisplayName string     `json:"display_name,omitempty"`
	OwnerID     int64      `json:"owner_id,omitempty"`
	Pos         [3]float64 `json:"pos"`
	Bounds      Box        `json:"bounds"`
}

// ERROR (server -> host)
type HostErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
