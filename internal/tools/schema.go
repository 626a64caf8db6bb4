package tools

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// querySchema is the shared shape of every read-only query tool: an optional
// filter expression plus paging bounds. additionalProperties is closed so a
// caller cannot smuggle connector-specific parameters past validation.
func querySchema(extra map[string]any) map[string]any {
	props := map[string]any{
		"query": map[string]any{
			"type":      "string",
			"maxLength": 1024,
		},
		"limit": map[string]any{
			"type":    "integer",
			"minimum": 1,
			"maximum": 100,
		},
		"offset": map[string]any{
			"type":    "integer",
			"minimum": 0,
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
}

var inputSchemaDocs = map[ToolKey]map[string]any{
	QueryIncidents: querySchema(map[string]any{
		"state": map[string]any{
			"type": "string",
			"enum": []any{"new", "in_progress", "on_hold", "resolved", "closed"},
		},
	}),
	QueryChanges:  querySchema(nil),
	QueryProblems: querySchema(nil),
	QueryAlerts: querySchema(map[string]any{
		"severity": map[string]any{
			"type": "string",
			"enum": []any{"critical", "major", "minor", "warning", "info"},
		},
	}),
}

var inputSchemas = mustCompileSchemas()

func mustCompileSchemas() map[ToolKey]*jsonschema.Schema {
	compiled := make(map[ToolKey]*jsonschema.Schema, len(inputSchemaDocs))
	for key, doc := range inputSchemaDocs {
		c := jsonschema.NewCompiler()
		name := string(key) + ".json"
		if err := c.AddResource(name, doc); err != nil {
			panic(fmt.Sprintf("tool input schema %s: %v", key, err))
		}
		sch, err := c.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("tool input schema %s: %v", key, err))
		}
		compiled[key] = sch
	}
	return compiled
}

// ValidateInput checks a tool invocation's input against the tool's schema.
func ValidateInput(key ToolKey, input map[string]any) error {
	sch, ok := inputSchemas[key]
	if !ok {
		return &SchemaError{Tool: key, Cause: fmt.Errorf("no input schema registered")}
	}
	if input == nil {
		input = map[string]any{}
	}
	// The validator compares numeric types by value, but integer checks on
	// Go ints require a json.Number or float; normalize ints up front.
	norm := make(map[string]any, len(input))
	for k, v := range input {
		switch n := v.(type) {
		case int:
			norm[k] = float64(n)
		case int64:
			norm[k] = float64(n)
		default:
			norm[k] = v
		}
	}
	if err := sch.Validate(norm); err != nil {
		return &SchemaError{Tool: key, Cause: err}
	}
	return nil
}
