// Package rqjob implements the job envelope, its on-Redis status record, and
// the create/reserve/recreate descriptor lifecycle from spec.md §3-4.3. The
// envelope's JSON shape is bit-exact with the reference Resque protocol so
// producers and consumers in any language share the same keyspace.
package rqjob

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Envelope is the wire-level job descriptor stored as the list element in
// queue:<name>. Args carries zero or one positional argument, matching the
// reference protocol's `"args":[...]` shape.
type Envelope struct {
	Class string          `json:"class"`
	ID    string          `json:"id,omitempty"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// NewID generates a 128-bit job id rendered as 32 hex characters, matching
// spec.md §3.
func NewID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewEnvelope builds an Envelope for class with an optional single
// positional argument. Pass nil for arg to omit args entirely.
func NewEnvelope(class, id string, arg interface{}) (*Envelope, error) {
	env := &Envelope{Class: class, ID: id}
	if arg != nil {
		raw, err := json.Marshal([]interface{}{arg})
		if err != nil {
			return nil, fmt.Errorf("marshal job argument: %w", err)
		}
		env.Args = raw
	}
	return env, nil
}

// Encode serializes the envelope to the bytes stored in Redis.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses raw bytes popped from a queue list into an Envelope.
func Decode(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Argument returns the decoded first positional argument and whether one was
// present.
func (e *Envelope) Argument() (json.RawMessage, bool) {
	if len(e.Args) == 0 {
		return nil, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(e.Args, &arr); err != nil || len(arr) == 0 {
		return nil, false
	}
	return arr[0], true
}

// GetArguments returns the single positional argument per spec.md §4.3, or
// a JSON empty array when none was supplied.
func (e *Envelope) GetArguments() json.RawMessage {
	if arg, ok := e.Argument(); ok {
		return arg
	}
	return json.RawMessage("[]")
}
