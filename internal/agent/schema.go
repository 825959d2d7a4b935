package agent

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Response schemas for the external agent protocol. A response that fails
// its schema is treated as malformed agent output, not a protocol crash.

const decideResponseSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "integer"},
		"error": {"type": "string"},
		"orders": {
			"type": "object",
			"additionalProperties": {
				"type": "array",
				"items": {"type": "string"}
			}
		}
	}
}`

const negotiateResponseSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "integer"},
		"error": {"type": "string"},
		"messages": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["recipient", "body"],
				"properties": {
					"sender": {"type": "string"},
					"recipient": {"type": "string"},
					"body": {"type": "string"},
					"kind": {"type": "string", "enum": ["private", "broadcast"]}
				}
			}
		}
	}
}`

const ackResponseSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "integer"},
		"error": {"type": "string"},
		"event": {"type": "string"}
	}
}`

var responseSchemas = map[string]*jsonschema.Schema{
	"decide":    jsonschema.MustCompileString("decide_response.json", decideResponseSchema),
	"negotiate": jsonschema.MustCompileString("negotiate_response.json", negotiateResponseSchema),
	"hello":     jsonschema.MustCompileString("ack_response.json", ackResponseSchema),
	"update":    jsonschema.MustCompileString("ack_response.json", ackResponseSchema),
}

// validateResponse checks a raw response line against the schema for op.
func validateResponse(op string, line []byte) error {
	schema, ok := responseSchemas[op]
	if !ok {
		return fmt.Errorf("unknown op %q", op)
	}
	var v any
	if err := json.Unmarshal(line, &v); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return err
	}
	return nil
}
