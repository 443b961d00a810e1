package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "mem://gardenperf/schemas/"

var hostSchemaFiles = map[string]string{
	TypeHostHello:            "host_hello.schema.json",
	TypeEntityAdded:          "entity_added.schema.json",
	TypeEntityMoved:          "entity_moved.schema.json",
	TypeEntityRemoved:        "entity_removed.schema.json",
	TypeFactionRoster:        "faction_roster.schema.json",
	TypePlayerFactionChanged: "player_faction_changed.schema.json",
	TypePlayerLogin:          "player_session.schema.json",
	TypePlayerLogout:         "player_session.schema.json",
}

// HostSchemas validates host stream messages against the embedded schemas.
type HostSchemas struct {
	byType map[string]*jsonschema.Schema
}

func CompileHostSchemas() (*HostSchemas, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
	}
	hs := &HostSchemas{byType: map[string]*jsonschema.Schema{}}
	for typ, name := range hostSchemaFiles {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		hs.byType[typ] = s
	}
	return hs, nil
}

// Validate checks raw against the schema for typ. Types without a schema
// pass.
func (h *HostSchemas) Validate(typ string, raw []byte) error {
	s := h.byType[typ]
	if s == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
