package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"plenisher.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// validateValue round-trips v through JSON so the schema sees exactly what
// goes over the wire.
func validateValue(t *testing.T, s *jsonschema.Schema, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		t.Fatalf("validate %s: %v", b, err)
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	helloSchema := compile(t, "hello.schema.json")
	welcomeSchema := compile(t, "welcome.schema.json")
	stateSchema := compile(t, "machine_state.schema.json")
	cmdSchema := compile(t, "cmd.schema.json")
	resultSchema := compile(t, "cmd_result.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"observer",
	  "capabilities":{"max_queue":8}
	}`), &hello)
	if err := helloSchema.Validate(hello); err != nil {
		t.Fatalf("hello: %v", err)
	}

	validateValue(t, welcomeSchema, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "5f0c",
		WorldID:         "OVERWORLD",
		Tick:            12,
		TickRateHz:      20,
		Machines:        [][3]int{{0, 40, 0}},
	})

	validateValue(t, stateSchema, protocol.MachineStateMsg{
		Type:            protocol.TypeMachineState,
		ProtocolVersion: protocol.Version,
		Tick:            40,
		WorldID:         "OVERWORLD",
		Pos:             [3]int{0, 40, 0},
		Fluid:           &protocol.Fluid{ID: "WATER", Amount: 9000},
		TankCapacity:    10000,
		Energy:          1900,
		EnergyCapacity:  20000,
		Frontier:        3,
		Visited:         7,
		MaxNodes:        4000,
	})
	// Empty tank: the fluid object is omitted entirely.
	validateValue(t, stateSchema, protocol.MachineStateMsg{
		Type:            protocol.TypeMachineState,
		ProtocolVersion: protocol.Version,
		WorldID:         "OVERWORLD",
		Finished:        true,
		MaxNodes:        4000,
	})

	validateValue(t, cmdSchema, protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ID:              "c1",
		Cmd:             protocol.CmdFill,
		Pos:             [3]int{0, 40, 0},
		Fluid:           "WATER",
		Amount:          1000,
	})

	validateValue(t, resultSchema, protocol.NewCmdResult("c1", 41, "", "accepted"))
	validateValue(t, resultSchema, protocol.NewCmdResult("c2", 41, protocol.ErrNotFound, "no machine"))
}

func TestSchemas_RejectUnknownCommand(t *testing.T) {
	cmdSchema := compile(t, "cmd.schema.json")
	var doc any
	_ = json.Unmarshal([]byte(`{"type":"CMD","protocol_version":"1.0","id":"x","cmd":"EXPLODE","pos":[0,0,0]}`), &doc)
	if err := cmdSchema.Validate(doc); err == nil {
		t.Fatalf("expected unknown cmd rejected")
	}
}
