package realtime

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/salah0eldin/autonmous-iot-car/internal/control"
)

//go:embed event.schema.json
var eventSchema string

// Decoder validates inbound client frames against the event schema before
// turning them into control events.
type Decoder struct {
	schema *jsonschema.Schema
}

func NewDecoder() (*Decoder, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("event.schema.json", strings.NewReader(eventSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("event.schema.json")
	if err != nil {
		return nil, err
	}
	return &Decoder{schema: schema}, nil
}

func (d *Decoder) Decode(frame []byte) (control.Event, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(frame))
	if err != nil {
		return control.Event{}, fmt.Errorf("%w: %v", control.ErrInvalidEvent, err)
	}
	if err := d.schema.Validate(doc); err != nil {
		return control.Event{}, fmt.Errorf("%w: %v", control.ErrInvalidEvent, err)
	}
	var ev control.Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return control.Event{}, fmt.Errorf("%w: %v", control.ErrInvalidEvent, err)
	}
	return ev, nil
}

// Message is a server to client frame.
type Message struct {
	Type  string         `json:"type"`
	State *control.State `json:"state,omitempty"`
	Error string         `json:"error,omitempty"`
}
