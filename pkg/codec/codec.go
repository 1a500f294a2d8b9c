// Package codec implements the Codec external interface of spec.md §6:
// Encode/Decode/Name over pkg/value.Value, with a JSON codec as the
// default for every ramp kind. Grounded on pkg/value/json.go's
// FromAny/ToAny round trip and on original_source's codec::lookup /
// codec::builtin_codec_map call sites, which describe the contract but
// carry no non-JSON codec implementation in the retrieved sources.
package codec

import "github.com/fluxcore/fluxcore/pkg/value"

// Codec converts between wire bytes and the Value tree, matching spec.md
// §6's external interface contract exactly.
type Codec interface {
	Encode(v value.Value) ([]byte, error)
	Decode(data []byte) (value.Value, error)
	Name() string
}

// JSON is the default codec: every ramp kind falls back to it unless a
// codec override is configured.
type JSON struct{}

func (JSON) Encode(v value.Value) ([]byte, error) { return value.Encode(v) }
func (JSON) Decode(data []byte) (value.Value, error) { return value.Decode(data) }
func (JSON) Name() string                          { return "json" }

// Registry resolves a codec by name, matching codec::lookup's
// name-to-implementation table.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry builds a Registry pre-populated with the JSON codec under
// the name "json" (tremor's builtin_codec_map default entry).
func NewRegistry() *Registry {
	r := &Registry{codecs: map[string]Codec{}}
	r.Register(JSON{})
	return r
}

// Register installs c under its own Name(), overwriting any prior entry.
func (r *Registry) Register(c Codec) { r.codecs[c.Name()] = c }

// Lookup resolves a codec by name.
func (r *Registry) Lookup(name string) (Codec, bool) {
	c, ok := r.codecs[name]
	return c, ok
}
