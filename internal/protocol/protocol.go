package protocol

import "encoding/json"

const Version = "1.0"

// Domain separates server-bound requests from client-bound responses.
type Domain uint16

const (
	DomainConcealServer Domain = 1
	DomainConcealClient Domain = 2
)

func (d Domain) String() string {
	switch d {
	case DomainConcealServer:
		return "server"
	case DomainConcealClient:
		return "client"
	}
	return "unknown"
}

// Type tags a message within its domain. Receivers ignore tags they do not
// know.
type Type uint16

// Server domain (requests).
const (
	TypeConcealedGridsRequest Type = iota + 1
	TypeRevealedGridsRequest
	TypeConcealRequest
	TypeRevealRequest
	TypeLoginRequest
	TypeLogoutRequest
	TypeObservingEntitiesRequest
	TypeSettingsRequest
	TypeChangeSettingRequest
	TypeStatusRequest
)

// Client domain (responses).
const (
	TypeConcealedGridsResponse Type = iota + 1
	TypeRevealedGridsResponse
	TypeConcealResponse
	TypeRevealResponse
	_ // login has no response
	_ // logout has no response
	TypeObservingEntitiesResponse
	TypeSettingsResponse
	TypeChangeSettingResponse
	TypeStatusResponse
)

var requestNames = map[Type]string{
	TypeConcealedGridsRequest:    "ConcealedGridsRequest",
	TypeRevealedGridsRequest:     "RevealedGridsRequest",
	TypeConcealRequest:           "ConcealRequest",
	TypeRevealRequest:            "RevealRequest",
	TypeLoginRequest:             "LoginRequest",
	TypeLogoutRequest:            "LogoutRequest",
	TypeObservingEntitiesRequest: "ObservingEntitiesRequest",
	TypeSettingsRequest:          "SettingsRequest",
	TypeChangeSettingRequest:     "ChangeSettingRequest",
	TypeStatusRequest:            "StatusRequest",
}

var responseNames = map[Type]string{
	TypeConcealedGridsResponse:    "ConcealedGridsResponse",
	TypeRevealedGridsResponse:     "RevealedGridsResponse",
	TypeConcealResponse:           "ConcealResponse",
	TypeRevealResponse:            "RevealResponse",
	TypeObservingEntitiesResponse: "ObservingEntitiesResponse",
	TypeSettingsResponse:          "SettingsResponse",
	TypeChangeSettingResponse:     "ChangeSettingResponse",
	TypeStatusResponse:            "StatusResponse",
}

// TypeName returns the message name of t in domain d, or "" when unknown.
func TypeName(d Domain, t Type) string {
	switch d {
	case DomainConcealServer:
		return requestNames[t]
	case DomainConcealClient:
		return responseNames[t]
	}
	return ""
}

// BaseMessage lets us route host stream JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
