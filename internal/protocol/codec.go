package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Frame layout: [domain u16][type u16][flags u8][body]. The body is JSON,
// zstd compressed when FlagZstd is set.
const (
	headerLen = 5

	FlagZstd uint8 = 1 << 0

	// CompressThreshold is the body size above which Encode compresses.
	CompressThreshold = 1024
	// MaxFrameBytes bounds decoded bodies.
	MaxFrameBytes = 4 << 20
)

var (
	ErrShortFrame    = errors.New("frame shorter than header")
	ErrFrameTooLarge = errors.New("frame body too large")
)

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zdec, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameBytes))
)

type Frame struct {
	Domain Domain
	Type   Type
	Body   []byte
}

// Name is the message name, or "" for unknown tags.
func (f Frame) Name() string { return TypeName(f.Domain, f.Type) }

// Known reports whether the frame's type tag is defined for its domain.
func (f Frame) Known() bool { return f.Name() != "" }

// Unmarshal decodes the frame body into v. An empty body leaves v untouched.
func (f Frame) Unmarshal(v any) error {
	if len(f.Body) == 0 {
		return nil
	}
	return json.Unmarshal(f.Body, v)
}

// Encode marshals v as the body of a frame tagged (d, t).
func Encode(d Domain, t Type, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %d/%d: %w", d, t, err)
	}
	var flags uint8
	if len(body) > CompressThreshold {
		body = zenc.EncodeAll(body, make([]byte, 0, len(body)/2))
		flags |= FlagZstd
	}
	out := make([]byte, headerLen, headerLen+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(d))
	binary.BigEndian.PutUint16(out[2:4], uint16(t))
	out[4] = flags
	return append(out, body...), nil
}

// Decode splits b into a frame. The body is decompressed but not parsed,
// so unknown tags can be skipped without error.
func Decode(b []byte) (Frame, error) {
	if len(b) < headerLen {
		return Frame{}, ErrShortFrame
	}
	f := Frame{
		Domain: Domain(binary.BigEndian.Uint16(b[0:2])),
		Type:   Type(binary.BigEndian.Uint16(b[2:4])),
	}
	body := b[headerLen:]
	if b[4]&FlagZstd != 0 {
		out, err := zdec.DecodeAll(body, nil)
		if err != nil {
			return Frame{}, fmt.Errorf("decompress %d/%d: %w", f.Domain, f.Type, err)
		}
		body = out
	} else {
		body = append([]byte(nil), body...)
	}
	if len(body) > MaxFrameBytes {
		return Frame{}, ErrFrameTooLarge
	}
	f.Body = body
	return f, nil
}

// EncodeRequest tags v with its server-domain type.
func EncodeRequest(v any) ([]byte, error) {
	t, ok := requestType(v)
	if !ok {
		return nil, fmt.Errorf("encode request: unsupported %T", v)
	}
	return Encode(DomainConcealServer, t, v)
}

// EncodeResponse tags v with its client-domain type.
func EncodeResponse(v any) ([]byte, error) {
	t, ok := responseType(v)
	if !ok {
		return nil, fmt.Errorf("encode response: unsupported %T", v)
	}
	return Encode(DomainConcealClient, t, v)
}

func requestType(v any) (Type, bool) {
	switch v.(type) {
	case ConcealedGridsRequest, *ConcealedGridsRequest:
		return TypeConcealedGridsRequest, true
	case RevealedGridsRequest, *RevealedGridsRequest:
		return TypeRevealedGridsRequest, true
	case ConcealRequest, *ConcealRequest:
		return TypeConcealRequest, true
	case RevealRequest, *RevealRequest:
		return TypeRevealRequest, true
	case LoginRequest, *LoginRequest:
		return TypeLoginRequest, true
	case LogoutRequest, *LogoutRequest:
		return TypeLogoutRequest, true
	case ObservingEntitiesRequest, *ObservingEntitiesRequest:
		return TypeObservingEntitiesRequest, true
	case SettingsRequest, *SettingsRequest:
		return TypeSettingsRequest, true
	case ChangeSettingRequest, *ChangeSettingRequest:
		return TypeChangeSettingRequest, true
	case StatusRequest, *StatusRequest:
		return TypeStatusRequest, true
	}
	return 0, false
}

func responseType(v any) (Type, bool) {
	switch v.(type) {
	case ConcealedGridsResponse, *ConcealedGridsResponse:
		return TypeConcealedGridsResponse, true
	case RevealedGridsResponse, *RevealedGridsResponse:
		return TypeRevealedGridsResponse, true
	case ConcealResponse, *ConcealResponse:
		return TypeConcealResponse, true
	case RevealResponse, *RevealResponse:
		return TypeRevealResponse, true
	case ObservingEntitiesResponse, *ObservingEntitiesResponse:
		return TypeObservingEntitiesResponse, true
	case SettingsResponse, *SettingsResponse:
		return TypeSettingsResponse, true
	case ChangeSettingResponse, *ChangeSettingResponse:
		return TypeChangeSettingResponse, true
	case StatusResponse, *StatusResponse:
		return TypeStatusResponse, true
	}
	return 0, false
}
