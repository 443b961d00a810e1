package main

import (
	"reflect"
	"testing"

	"gardenperf.ai/internal/protocol"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line    string
		want    any
		wantErr bool
	}{
		{line: "", want: nil},
		{line: "concealed", want: protocol.ConcealedGridsRequest{}},
		{line: "  Revealed ", want: protocol.RevealedGridsRequest{}},
		{line: "conceal 42", want: protocol.ConcealRequest{EntityID: 42}},
		{line: "reveal 7", want: protocol.RevealRequest{EntityID: 7}},
		{line: "set reveal_visibility_meters 5000", want: protocol.ChangeSettingRequest{Name: "reveal_visibility_meters", Value: "5000"}},
		{line: "status", want: protocol.StatusRequest{}},
		{line: "conceal", wantErr: true},
		{line: "conceal abc", wantErr: true},
		{line: "set x", wantErr: true},
		{line: "fly", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseCommand(tc.line)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.line)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.line, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%q: got %#v want %#v", tc.line, got, tc.want)
		}
	}
}

func TestParseCommand_Encodes(t *testing.T) {
	req, err := parseCommand("conceal 5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := protocol.EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := protocol.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Domain != protocol.DomainConcealServer || f.Type != protocol.TypeConcealRequest {
		t.Fatalf("frame=%+v", f)
	}
}
