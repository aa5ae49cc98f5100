package store

import (
	"encoding/json"
	"errors"
)

// Wire protocol shared by the store server and Remote. Frames are JSON text
// messages.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpRead        = "read"
	OpWrite       = "write"
	OpUpdate      = "update"
	OpCompareSwap = "cas"

	TypeValue  = "value"
	TypeResult = "result"
)

type Request struct {
	Op      string          `json:"op"`
	ID      string          `json:"id,omitempty"`
	Path    string          `json:"path"`
	Value   json.RawMessage `json:"value,omitempty"`
	Version int64           `json:"version,omitempty"`
}

type Response struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Path    string          `json:"path,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Version int64           `json:"version,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (r Response) Snapshot() Snapshot {
	return Snapshot{Path: r.Path, Value: r.Value, Version: r.Version}
}

// Fields decodes an update request body into relative paths and raw values.
func (r Request) Fields() (map[string]any, error) {
	var raw map[string]json.RawMessage
	if len(r.Value) > 0 {
		if err := json.Unmarshal(r.Value, &raw); err != nil {
			return nil, err
		}
	}
	fields := make(map[string]any, len(raw))
	for key, value := range raw {
		fields[key] = value
	}
	return fields, nil
}

var wireErrors = []error{ErrInvalidPath, ErrClosed, ErrUnavailable, ErrConflict, ErrNotSupported}

// errorFromWire restores the sentinel behind a result error where there is
// one, so callers can keep using errors.Is across the network.
func errorFromWire(msg string) error {
	for _, err := range wireErrors {
		if msg == err.Error() {
			return err
		}
	}
	return errors.New(msg)
}
