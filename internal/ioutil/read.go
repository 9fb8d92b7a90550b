// Package ioutil holds bounded readers for request and response bodies.
package ioutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned by DecodeJSON when the body exceeds its limit
var ErrTooLarge = errors.New("body too large")

// ReadLimited reads up to limit bytes from r and returns the content as a string.
// A read failure is described in the result rather than dropped, since the
// value only ends up in error messages and logs.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}

// DecodeJSON decodes a single JSON value of at most limit bytes into v.
// Trailing data after the value is an error.
func DecodeJSON(r io.Reader, limit int64, v any) error {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > limit {
		return ErrTooLarge
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decoding body: unexpected data after JSON value")
	}
	return nil
}
