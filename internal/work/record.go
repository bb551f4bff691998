package work

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"strings"
)

// IDField is the JSON key holding the external identifier.
const IDField = "id"

// Record is a schema-less work document: the external id plus every field
// of the source line. Fields are kept exactly as decoded (numbers stay
// json.Number) so a stored record compares equal to the line it came from.
type Record struct {
	ID     string
	Fields map[string]any
}

// ParseRecord decodes one line-delimited JSON object.
func ParseRecord(line []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if fields == nil {
		return Record{}, fmt.Errorf("decode record: expected a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Record{}, fmt.Errorf("decode record: trailing data after object")
	}

	id, err := recordID(fields[IDField])
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Fields: fields}, nil
}

// FromWork converts a typed Work into its Record form.
func FromWork(w Work) (Record, error) {
	if err := w.Validate(); err != nil {
		return Record{}, err
	}
	payload, err := json.Marshal(w)
	if err != nil {
		return Record{}, fmt.Errorf("marshal work %s: %w", w.ID, err)
	}
	return ParseRecord(payload)
}

// Clone returns a copy that does not share the top-level field map.
func (r Record) Clone() Record {
	return Record{ID: r.ID, Fields: maps.Clone(r.Fields)}
}

// MarshalJSON encodes the record's fields.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields)
}

// String returns a title-ish label for log lines.
func (r Record) String() string {
	if title, ok := r.Fields["title"].(string); ok && title != "" {
		return fmt.Sprintf("%s (%s)", r.ID, title)
	}
	return r.ID
}

func recordID(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", ErrMissingID
	case string:
		if strings.TrimSpace(v) == "" {
			return "", ErrMissingID
		}
		return v, nil
	case json.Number:
		return normalizeID(v)
	default:
		return "", fmt.Errorf("%w: got %T", ErrInvalidID, raw)
	}
}
