package compose

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LoadJSON reads and validates a scene file.
func LoadJSON(path string) (Composition, error) {
	f, err := os.Open(path)
	if err != nil {
		return Composition{}, err
	}
	defer f.Close()

	c, err := DecodeJSON(f)
	if err != nil {
		return Composition{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// DecodeJSON reads one composition from r. Unknown fields are rejected so
// that typos in scene files surface.
func DecodeJSON(r io.Reader) (Composition, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var c Composition
	if err := dec.Decode(&c); err != nil {
		return Composition{}, err
	}
	if err := c.Validate(); err != nil {
		return Composition{}, err
	}
	return c, nil
}

// EncodeJSON writes c as indented JSON.
func EncodeJSON(w io.Writer, c Composition) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
