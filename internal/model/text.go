package model

import (
	"bytes"
	"encoding/json"
)

// Text is a scraped scalar read back as a string. Facet values are stored as
// the source published them, so the same field may hold a JSON string,
// number or bool depending on the firm.
type Text string

// TextPtr returns a pointer to s as Text.
func TextPtr(s string) *Text {
	t := Text(s)
	return &t
}

func (t Text) String() string { return string(t) }

// UnmarshalJSON accepts any JSON value. Strings are unquoted, numbers and
// bools keep their literal form, and objects or arrays are kept compacted.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*t = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	case b[0] == '{' || b[0] == '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err != nil {
			return err
		}
		*t = Text(buf.String())
		return nil
	default:
		*t = Text(b)
		return nil
	}
}
