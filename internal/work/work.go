// Package work defines the archive work record shared by the fetcher and the indexer.
package work

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the on-disk representation of Work.Date.
const DateLayout = "2006-01-02"

var (
	// ErrMissingID is returned for records that carry no usable external id.
	ErrMissingID = errors.New("record has no id")
	// ErrInvalidID is returned when the id is neither a string nor an integer.
	ErrInvalidID = errors.New("record id must be a string or an integer")
)

// Work is one fan-fiction work as listed by the archive search pages.
type Work struct {
	ID            ID       `json:"id"`
	Title         string   `json:"title"`
	Author        string   `json:"author,omitempty"`
	Relationships []string `json:"relationships"`
	Characters    []string `json:"characters"`
	Freeforms     []string `json:"freeforms"`
	Date          Date     `json:"date"`
	Language      string   `json:"language"`
	Words         uint32   `json:"words"`
	Kudos         uint32   `json:"kudos"`
	Hits          uint32   `json:"hits"`
}

// Validate reports whether the work can be used as an index document.
func (w Work) Validate() error {
	if strings.TrimSpace(string(w.ID)) == "" {
		return ErrMissingID
	}
	return nil
}

// ID is the archive's stable work identifier. It decodes from either a JSON
// string or a JSON integer and always encodes as a string.
type ID string

// UnmarshalJSON accepts "123" and 123.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return ErrMissingID
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	parsed, err := normalizeID(json.Number(data))
	if err != nil {
		return err
	}
	*id = ID(parsed)
	return nil
}

// Date is a calendar day without a time zone.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a day in the given layout.
func ParseDate(layout, value string) (Date, error) {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return Date{Time: t}, nil
}

// String formats the date using DateLayout.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a "YYYY-MM-DD" string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	parsed, err := ParseDate(DateLayout, s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func normalizeID(n json.Number) (string, error) {
	raw := strings.TrimSpace(n.String())
	if raw == "" {
		return "", ErrMissingID
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidID, raw)
	}
	return strconv.FormatInt(v, 10), nil
}
