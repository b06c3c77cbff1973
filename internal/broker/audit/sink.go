package audit

import (
	"encoding/json"
	"fmt"
	"io"
)

// LineSink writes one JSON object per event to w, keys sorted
// lexicographically, newline-terminated.
type LineSink struct {
	w io.Writer
}

// NewLineSink creates a LineSink writing to w (typically os.Stdout).
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: w}
}

// Write encodes the event canonically and appends a newline.
func (s *LineSink) Write(evt Event) error {
	data, err := canonicalJSON(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "%s\n", data); err != nil {
		return fmt.Errorf("audit line write: %w", err)
	}
	return nil
}

// canonicalJSON encodes v with object keys sorted lexicographically at every
// nesting level. encoding/json sorts map keys, so a struct is round-tripped
// through a map to drop its declaration-order field layout.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("audit canonicalize: %w", err)
	}
	return json.Marshal(m)
}
