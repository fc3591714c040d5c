package api

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nerrad567/entity-manager/internal/manager"
)

// entityIDSchema matches the entity_id grammar.
var entityIDSchema = map[string]any{
	"type":    "string",
	"pattern": `^[a-z][a-z0-9_]*\.[a-z0-9_]+$`,
}

// anyString accepts any string. Rename and reference rewrite take raw
// strings so the manager can report its own format errors.
var anyString = map[string]any{"type": "string"}

// commandFields lists the fields each command accepts beyond id and type,
// and which of them are required.
var commandFields = map[string]struct {
	properties map[string]any
	required   []string
}{
	CmdGetDisabledEntities: {
		properties: map[string]any{
			"state": map[string]any{"enum": []string{"disabled", "enabled", "all"}},
		},
	},
	CmdEnableEntity:  {properties: map[string]any{"entity_id": entityIDSchema}, required: []string{"entity_id"}},
	CmdDisableEntity: {properties: map[string]any{"entity_id": entityIDSchema}, required: []string{"entity_id"}},
	CmdBulkEnable:    {properties: map[string]any{"entity_ids": bulkSchema()}, required: []string{"entity_ids"}},
	CmdBulkDisable:   {properties: map[string]any{"entity_ids": bulkSchema()}, required: []string{"entity_ids"}},
	CmdRenameEntity: {
		properties: map[string]any{"old_entity_id": anyString, "new_entity_id": anyString},
		required:   []string{"old_entity_id", "new_entity_id"},
	},
	CmdRemoveEntity: {properties: map[string]any{"entity_id": entityIDSchema}, required: []string{"entity_id"}},
	CmdUpdateDisplayName: {
		properties: map[string]any{
			"entity_id": entityIDSchema,
			"name":      map[string]any{"type": []string{"string", "null"}},
		},
		required: []string{"entity_id"},
	},
	CmdExportStates:       {},
	CmdGetEntityDetails:   {properties: map[string]any{"entity_id": entityIDSchema}, required: []string{"entity_id"}},
	CmdGetAutomations:     {},
	CmdGetTemplateSensors: {},
	CmdUpdateYAMLReferences: {
		properties: map[string]any{"old_entity_id": anyString, "new_entity_id": anyString},
		required:   []string{"old_entity_id", "new_entity_id"},
	},
	CmdListHACSItems: {},
}

func bulkSchema() map[string]any {
	return map[string]any{
		"type":     "array",
		"items":    entityIDSchema,
		"minItems": 1,
		"maxItems": manager.MaxBulkEntities,
	}
}

// compileSchemas compiles one schema per command. Every schema requires
// id and type and rejects unknown fields.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	names := make([]string, 0, len(commandFields))

	for name, fields := range commandFields {
		props := map[string]any{
			"id":   map[string]any{},
			"type": map[string]any{"const": name},
		}
		maps.Copy(props, fields.properties)

		doc := map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             append([]string{"id", "type"}, fields.required...),
			"additionalProperties": false,
		}

		// Round-trip through JSON so the compiler sees plain decoded values.
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding schema %s: %w", name, err)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decoding schema %s: %w", name, err)
		}

		url := schemaURL(name)
		if err := c.AddResource(url, decoded); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", name, err)
		}
		names = append(names, name)
	}

	schemas := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := c.Compile(schemaURL(name))
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}
		schemas[name] = s
	}
	return schemas, nil
}

func schemaURL(command string) string {
	return strings.ReplaceAll(command, "/", "_") + ".json"
}

// lowerEntityIDs lowercases the entity_id and entity_ids fields of a
// decoded command in place and reports whether anything changed. Rename
// and reference rewrite use other field names and keep their input as
// given.
func lowerEntityIDs(doc any) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	changed := false
	lower := func(v any) any {
		if s, ok := v.(string); ok && s != strings.ToLower(s) {
			changed = true
			return strings.ToLower(s)
		}
		return v
	}
	if v, ok := m["entity_id"]; ok {
		m["entity_id"] = lower(v)
	}
	if ids, ok := m["entity_ids"].([]any); ok {
		for i, v := range ids {
			ids[i] = lower(v)
		}
	}
	return changed
}

// schemaMessage turns a validation error into a single-line message.
// The first line of a jsonschema error names the schema; the rest lists
// the failing locations.
func schemaMessage(err error) string {
	lines := strings.Split(err.Error(), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}

	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-"))
		if line != "" {
			parts = append(parts, line)
		}
	}
	if len(parts) == 0 {
		return "invalid message"
	}
	return strings.Join(parts, "; ")
}
