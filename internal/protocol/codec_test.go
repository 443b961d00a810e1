package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gardenperf.ai/internal/sim/tuning"
)

func TestEncodeDecode_Request(t *testing.T) {
	b, err := EncodeRequest(ConcealRequest{EntityID: 99})
	require.NoError(t, err)

	f, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, DomainConcealServer, f.Domain)
	assert.Equal(t, TypeConcealRequest, f.Type)
	assert.Equal(t, "ConcealRequest", f.Name())

	var req ConcealRequest
	require.NoError(t, f.Unmarshal(&req))
	assert.Equal(t, int64(99), req.EntityID)
}

func TestEncodeDecode_LargeBodyIsCompressed(t *testing.T) {
	var resp RevealedGridsResponse
	for i := 0; i < 200; i++ {
		resp.Grids = append(resp.Grids, RevealedGrid{
			EntityID:    int64(i + 1),
			DisplayName: strings.Repeat("station ", 4),
			Reasons:     "Controlled|SpawnOwner",
		})
	}
	b, err := EncodeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, FlagZstd, b[4]&FlagZstd)

	f, err := Decode(b)
	require.NoError(t, err)
	var got RevealedGridsResponse
	require.NoError(t, f.Unmarshal(&got))
	assert.Equal(t, resp, got)
}

func TestEncodeResponse_Settings(t *testing.T) {
	b, err := EncodeResponse(&SettingsResponse{Settings: tuning.Defaults()})
	require.NoError(t, err)
	f, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, TypeSettingsResponse, f.Type)

	var got SettingsResponse
	require.NoError(t, f.Unmarshal(&got))
	assert.Equal(t, tuning.Defaults(), got.Settings)
}

func TestDecode_UnknownTagIsNotAnError(t *testing.T) {
	b, err := Encode(DomainConcealServer, Type(4000), map[string]int{"x": 1})
	require.NoError(t, err)
	f, err := Decode(b)
	require.NoError(t, err)
	assert.False(t, f.Known())
}

func TestDecode_ShortFrame(t *testing.T) {
	_, err := Decode([]byte{0, 1})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestEncode_UnsupportedType(t *testing.T) {
	_, err := EncodeRequest(StatusResponse{})
	assert.Error(t, err)
	_, err = EncodeResponse(ConcealRequest{})
	assert.Error(t, err)
}

func TestLoginLogoutHaveNoResponseType(t *testing.T) {
	assert.Equal(t, "", TypeName(DomainConcealClient, TypeLoginRequest))
	assert.Equal(t, "", TypeName(DomainConcealClient, TypeLogoutRequest))
	assert.Equal(t, "StatusResponse", TypeName(DomainConcealClient, TypeStatusResponse))
}
