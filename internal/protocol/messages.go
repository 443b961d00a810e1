package protocol

import "gardenperf.ai/internal/sim/tuning"

// Requests (server domain). Login and logout act on the sending player.

type ConcealedGridsRequest struct{}
type RevealedGridsRequest struct{}
type LoginRequest struct{}
type LogoutRequest struct{}
type ObservingEntitiesRequest struct{}
type SettingsRequest struct{}
type StatusRequest struct{}

type ConcealRequest struct {
	EntityID int64 `json:"entity_id"`
}

type RevealRequest struct {
	EntityID int64 `json:"entity_id"`
}

type ChangeSettingRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Responses (client domain).

type ConcealedGrid struct {
	EntityID      int64  `json:"entity_id"`
	DisplayName   string `json:"display_name"`
	OwnerID       int64  `json:"owner_id,omitempty"`
	Revealability uint8  `json:"revealability"`
	// Reasons is the human-readable form of Revealability.
	Reasons string `json:"reasons,omitempty"`
}

type ConcealedGridsResponse struct {
	Grids []ConcealedGrid `json:"grids"`
}

type RevealedGrid struct {
	EntityID       int64  `json:"entity_id"`
	DisplayName    string `json:"display_name"`
	OwnerID        int64  `json:"owner_id,omitempty"`
	Concealability uint8  `json:"concealability"`
	Reasons        string `json:"reasons,omitempty"`
	Observers      int    `json:"observers,omitempty"`
}

type RevealedGridsResponse struct {
	Grids []RevealedGrid `json:"grids"`
}

type ConcealResponse struct {
	EntityID int64 `json:"entity_id"`
	Success  bool  `json:"success"`
}

type RevealResponse struct {
	EntityID int64 `json:"entity_id"`
	Success  bool  `json:"success"`
}

type ObservingEntity struct {
	EntityID    int64      `json:"entity_id"`
	DisplayName string     `json:"display_name"`
	Pos         [3]float64 `json:"pos"`
	Observed    []int64    `json:"observed,omitempty"`
	Dirty       bool       `json:"dirty,omitempty"`
}

type ObservingEntitiesResponse struct {
	Entities []ObservingEntity `json:"entities"`
}

type SettingsResponse struct {
	Settings tuning.Settings `json:"settings"`
}

type ChangeSettingResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type StatusResponse struct {
	ServerRunning bool `json:"server_running"`
}
