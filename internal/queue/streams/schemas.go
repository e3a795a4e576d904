package streams

import "fmt"

const (
	EventInteractionLogged = "interaction.logged"
	EventStepTransitioned  = "step.transitioned"

	payloadV1 = "v1"
)

// Definition describes a schema entry managed by the registry.
type Definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var baseDefinitions = []Definition{
	{
		EventType: EventInteractionLogged,
		Version:   payloadV1,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["agent", "prompt", "response"],
  "properties": {
    "agent": {"type": "string", "enum": ["planner", "researcher", "executor"]},
    "prompt": {"type": "string"},
    "response": {"type": "string"}
  },
  "additionalProperties": false
}`),
	},
	{
		EventType: EventStepTransitioned,
		Version:   payloadV1,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["step_id", "status"],
  "properties": {
    "step_id": {"type": "string", "minLength": 1},
    "plan_id": {"type": "integer"},
    "status": {"type": "string", "enum": ["pending", "running", "completed", "failed"]}
  },
  "additionalProperties": false
}`),
	},
}

// NewDefaultRegistry returns a registry with the interaction and step schemas.
func NewDefaultRegistry() (*SchemaRegistry, error) {
	reg := NewSchemaRegistry()
	for _, def := range baseDefinitions {
		if err := reg.Register(def.EventType, def.Version, def.Schema); err != nil {
			return nil, fmt.Errorf("register %s@%s: %w", def.EventType, def.Version, err)
		}
	}
	return reg, nil
}
