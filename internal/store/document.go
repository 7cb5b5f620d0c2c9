package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"
)

// legacyLayout is the zone-less ISO 8601 form written by earlier builds of the app.
const legacyLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a point in time stored as RFC 3339 text.
type Timestamp struct {
	time.Time
}

// NewTimestamp returns a pointer so it can be assigned to optional fields directly.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.Time.Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts.Time = t
		return nil
	}
	t, err := time.ParseInLocation(legacyLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	ts.Time = t
	return nil
}

// Document is the single record persisted on the data volume.
// Keys the app does not know about (put there by an operator or another
// build) are kept in Extra and written back unchanged.
type Document struct {
	FirstStarted   *Timestamp `json:"first_started,omitempty"`
	RestartCount   int        `json:"restart_count"`
	LastRestart    *Timestamp `json:"last_restart,omitempty"`
	UserMessage    *string    `json:"user_message,omitempty"`
	MessageUpdated *Timestamp `json:"message_updated,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// documentFields has Document's JSON layout without its methods.
type documentFields Document

var knownKeys = []string{"first_started", "restart_count", "last_restart", "user_message", "message_updated"}

func (d *Document) UnmarshalJSON(b []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	if all == nil {
		// literal null
		return nil
	}
	var f documentFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) > 0 {
		f.Extra = all
	} else {
		f.Extra = nil
	}
	*d = Document(f)
	return nil
}

// MarshalJSON writes the known fields first, then extra keys in sorted order.
func (d Document) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(documentFields(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return b, nil
	}
	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		if !slices.Contains(knownKeys, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(b[:len(b)-1])
	for _, k := range keys {
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		var vb bytes.Buffer
		if err := json.Compact(&vb, d.Extra[k]); err != nil {
			return nil, fmt.Errorf("extra key %s: %w", k, err)
		}
		buf.WriteByte(',')
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb.Bytes())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Message returns the stored message, or "" when none was ever set.
func (d *Document) Message() string {
	if d == nil || d.UserMessage == nil {
		return ""
	}
	return *d.UserMessage
}

// MarshalIndent renders the document the way it is written to disk.
func (d *Document) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
