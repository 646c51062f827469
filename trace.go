package opts

import (
	json "github.com/goccy/go-json"
)

// Trace captures where a resolved value came from.
type Trace struct {
	Key string `json:"key"`
	// Source is the winning layer name, or DefaultsSource.
	Source    string       `json:"source"`
	Layers    []Provenance `json:"layers,omitempty"`
	Validated bool         `json:"validated"`
}

// Provenance details how one layer contributed to a traced key. Value is the
// raw layer value before validators ran.
type Provenance struct {
	Layer    string `json:"layer"`
	Label    string `json:"label,omitempty"`
	Priority int    `json:"priority"`
	Value    any    `json:"value,omitempty"`
	Applied  bool   `json:"applied"`
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a payload produced by ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
