package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoBadFrame   = "E_PROTO_BAD_FRAME"
	ErrProtoSchema     = "E_PROTO_SCHEMA"

	// Host stream.
	ErrHostBusy     = "E_HOST_BUSY"
	ErrHostConflict = "E_HOST_CONFLICT"

	// Request layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownEntity = "E_UNKNOWN_ENTITY"
	ErrNotEligible   = "E_NOT_ELIGIBLE"
	ErrBadSetting    = "E_BAD_SETTING"
	ErrDisabled      = "E_DISABLED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoBadFrame:   {},
	ErrProtoSchema:     {},
	ErrHostBusy:        {},
	ErrHostConflict:    {},
	ErrBadRequest:      {},
	ErrUnknownEntity:   {},
	ErrNotEligible:     {},
	ErrBadSetting:      {},
	ErrDisabled:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
