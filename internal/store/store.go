// Package store is the shared, path-addressed state every client observes.
//
// Values live in a JSON tree addressed by "/"-separated paths. Subscribers see
// the current value immediately and again after every committed write that
// touches the path, one of its ancestors, or one of its descendants. Writes are
// blind overwrites; stores that can also compare-and-swap implement Conditional.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrUnavailable  = errors.New("store unavailable")
	ErrClosed       = errors.New("store closed")
	ErrConflict     = errors.New("store conflict")
	ErrNotSupported = errors.New("conditional writes not supported")
	ErrInvalidPath  = errors.New("invalid store path")
)

// Snapshot is the value at a path as of Version. A missing value has an empty
// Value.
type Snapshot struct {
	Path    string          `json:"path"`
	Value   json.RawMessage `json:"value,omitempty"`
	Version int64           `json:"version"`
}

func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 && string(s.Value) != "null"
}

func (s Snapshot) Decode(dest any) error {
	if !s.Exists() {
		return nil
	}
	return json.Unmarshal(s.Value, dest)
}

// Change is one committed path write, reported to commit hooks in commit order.
type Change struct {
	Path  string
	Value json.RawMessage
	Rev   int64
}

type Store interface {
	Subscribe(path string, fn func(Snapshot)) (unsubscribe func())
	Read(ctx context.Context, path string) (Snapshot, error)
	// Write replaces the subtree at path. A nil value deletes it. Writing a
	// leaf path is the single-field write.
	Write(ctx context.Context, path string, value any) error
	// Update writes several relative child paths in one commit.
	Update(ctx context.Context, path string, fields map[string]any) error
}

// Conditional stores commit a write only if the path is still at version.
type Conditional interface {
	CompareAndSwap(ctx context.Context, path string, version int64, value any) (bool, error)
}

const maxTransactAttempts = 16

// Transact runs a read-modify-write on path, retrying when another writer got
// there first. fn returns the new value or an error that aborts the transaction
// and is returned as is.
func Transact(ctx context.Context, s Store, path string, fn func(current Snapshot) (any, error)) error {
	cond, ok := s.(Conditional)
	if !ok {
		return ErrNotSupported
	}
	for attempt := 0; attempt < maxTransactAttempts; attempt++ {
		current, err := s.Read(ctx, path)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		swapped, err := cond.CompareAndSwap(ctx, path, current.Version, next)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return ErrConflict
}

// SupportsTransactions reports whether Transact can be used with s.
func SupportsTransactions(s Store) bool {
	_, ok := s.(Conditional)
	return ok
}

type blind struct {
	Store
}

// Blind hides conditional writes, leaving only last-write-wins operations.
func Blind(s Store) Store {
	return blind{Store: s}
}

// Clean normalizes a path: no leading, trailing or repeated separators.
func Clean(path string) string {
	parts := Split(path)
	return strings.Join(parts, "/")
}

func Split(path string) []string {
	raw := strings.Split(path, "/")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}

func Join(parts ...string) string {
	return Clean(strings.Join(parts, "/"))
}

// ValidPath rejects segments that cannot round-trip through the wire protocol
// or a database key.
func ValidPath(path string) bool {
	for _, part := range Split(path) {
		if part == "." || part == ".." {
			return false
		}
		for _, r := range part {
			if r < 0x20 || r == 0x7f {
				return false
			}
			switch r {
			case '#', '$', '[', ']', '?':
				return false
			}
		}
	}
	return true
}

// related reports whether a write at one path changes the value seen at the other.
func related(a, b string) bool {
	if a == b || a == "" || b == "" {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
