package audit

import (
	"bytes"
	"encoding/json"
)

// canonicalJSON is the byte form that gets hashed: v is round-tripped through
// a generic value (so structs and typed slices encode like the maps read back
// from storage), map keys come out sorted, and HTML is not escaped.
func canonicalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
