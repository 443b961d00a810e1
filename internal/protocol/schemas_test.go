package protocol_test

import (
	"testing"

	"gardenperf.ai/internal/protocol"
)

func TestHostSchemas_ValidateSamples(t *testing.T) {
	hs, err := protocol.CompileHostSchemas()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	valid := map[string]string{
		protocol.TypeHostHello: `{"type":"HOST_HELLO","protocol_version":"1.0","host_name":"ds-1"}`,
		protocol.TypeEntityAdded: `{
		  "type":"ENTITY_ADDED","entity_id":7,"display_name":"Miner",
		  "caps":["GRID","CONTROLLABLE"],
		  "pos":[1,2,3],"bounds":{"min":[0,1,2],"max":[2,3,4]},
		  "owner_id":42,"inside_asteroid":true
		}`,
		protocol.TypeEntityMoved:          `{"type":"ENTITY_MOVED","entity_id":7,"pos":[1,2,3],"bounds":{"min":[0,1,2],"max":[2,3,4]},"speed":12.5}`,
		protocol.TypeEntityRemoved:        `{"type":"ENTITY_REMOVED","entity_id":7}`,
		protocol.TypeFactionRoster:        `{"type":"FACTION_ROSTER","factions":[{"faction_id":3,"members":[1,2]}]}`,
		protocol.TypePlayerFactionChanged: `{"type":"PLAYER_FACTION_CHANGED","player_id":1,"from":0,"to":3}`,
		protocol.TypePlayerLogin:          `{"type":"PLAYER_LOGIN","player_id":1,"faction_id":3}`,
	}
	for typ, raw := range valid {
		if err := hs.Validate(typ, []byte(raw)); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}

	invalid := map[string]string{
		protocol.TypeEntityAdded:   `{"type":"ENTITY_ADDED","entity_id":7,"caps":["WINGS"],"pos":[1,2,3],"bounds":{"min":[0,1,2],"max":[2,3,4]}}`,
		protocol.TypeEntityMoved:   `{"type":"ENTITY_MOVED","entity_id":7,"pos":[1,2],"bounds":{"min":[0,1,2],"max":[2,3,4]},"speed":1}`,
		protocol.TypeEntityRemoved: `{"type":"ENTITY_REMOVED","entity_id":0}`,
	}
	for typ, raw := range invalid {
		if err := hs.Validate(typ, []byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", typ)
		}
	}

	if err := hs.Validate("SOMETHING_NEW", []byte(`{"type":"SOMETHING_NEW"}`)); err != nil {
		t.Fatalf("unknown types should pass: %v", err)
	}
}
