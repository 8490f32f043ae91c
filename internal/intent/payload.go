package intent

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Payload is an opaque JSON value attached to a rule. The matcher never looks
// inside it; it is carried from the rule set to the caller byte-for-byte.
//
// In YAML rule sets any node is accepted and re-serialised to JSON.
type Payload []byte

// IsZero reports whether the payload is absent or JSON null.
func (p Payload) IsZero() bool {
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (p Payload) Decode(v any) error {
	if p.IsZero() {
		return nil
	}
	return json.Unmarshal(p, v)
}

// MarshalJSON returns the stored JSON, or null when absent.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores a copy of data.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], data...)
	return nil
}

// UnmarshalYAML converts the node to JSON.
func (p *Payload) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	if v == nil {
		*p = nil
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("intent: actions at line %d: %w", node.Line, err)
	}
	*p = b
	return nil
}
