package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Memory is an in-process Store. The server wraps one and exposes it over
// the wire; tests use it directly.
type Memory struct {
	mu      sync.Mutex
	root    map[string]any
	rev     int64
	revs    map[string]int64
	subs    map[string]map[uint64]*subscriber
	nextSub uint64
	hooks   []func(Change)
	closed  bool

	notify *dispatcher
}

var (
	_ Store       = (*Memory)(nil)
	_ Conditional = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		root:   make(map[string]any),
		revs:   make(map[string]int64),
		subs:   make(map[string]map[uint64]*subscriber),
		notify: newDispatcher(),
	}
}

// OnCommit registers a hook called for every committed change while the
// store lock is held. Hooks must not block or call back into the store.
func (m *Memory) OnCommit(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Memory) Subscribe(path string, fn func(Snapshot)) func() {
	path = Clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	sub := &subscriber{id: m.nextSub, path: path, fn: fn}
	sub.active.Store(true)
	group := m.subs[path]
	if group == nil {
		group = make(map[uint64]*subscriber)
		m.subs[path] = group
	}
	group[sub.id] = sub
	if !m.closed {
		m.notify.deliver(sub, m.snapshotLocked(path))
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		sub.active.Store(false)
		if group := m.subs[path]; group != nil {
			delete(group, sub.id)
			if len(group) == 0 {
				delete(m.subs, path)
			}
		}
	}
}

func (m *Memory) Read(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	return m.snapshotLocked(Clean(path)), nil
}

func (m *Memory) Write(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidPath(path) {
		return ErrInvalidPath
	}
	normalized, err := normalize(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.commitLocked([]pendingWrite{{path: Clean(path), value: normalized}}, true)
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	writes := make([]pendingWrite, 0, len(fields))
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		full := Join(path, key)
		if !ValidPath(full) || Clean(key) == "" {
			return ErrInvalidPath
		}
		normalized, err := normalize(fields[key])
		if err != nil {
			return err
		}
		writes = append(writes, pendingWrite{path: full, value: normalized})
	}
	if len(writes) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.commitLocked(writes, true)
	return nil
}

func (m *Memory) CompareAndSwap(ctx context.Context, path string, version int64, value any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !ValidPath(path) {
		return false, ErrInvalidPath
	}
	normalized, err := normalize(value)
	if err != nil {
		return false, err
	}
	path = Clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if m.versionLocked(path) != version {
		return false, nil
	}
	m.commitLocked([]pendingWrite{{path: path, value: normalized}}, true)
	return true, nil
}

// Restore replays persisted changes without running commit hooks. It is meant
// for boot, before clients connect.
func (m *Memory) Restore(changes []Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, change := range changes {
		normalized, err := normalize(change.Value)
		if err != nil {
			return err
		}
		path := Clean(change.Path)
		m.setLocked(Split(path), normalized)
		m.revs[path] = change.Rev
		if change.Rev > m.rev {
			m.rev = change.Rev
		}
	}
	return nil
}

// Sync blocks until all pending notifications have been delivered.
func (m *Memory) Sync() {
	m.notify.wait()
}

func (m *Memory) Revision() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rev
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.notify.close()
	return nil
}

type pendingWrite struct {
	path  string
	value any
}

func (m *Memory) commitLocked(writes []pendingWrite, runHooks bool) {
	m.rev++
	for _, w := range writes {
		m.setLocked(Split(w.path), w.value)
		m.revs[w.path] = m.rev
		if runHooks && len(m.hooks) > 0 {
			raw, _ := marshalValue(w.value)
			change := Change{Path: w.path, Value: raw, Rev: m.rev}
			for _, hook := range m.hooks {
				hook(change)
			}
		}
	}
	for subPath, group := range m.subs {
		touched := false
		for _, w := range writes {
			if related(subPath, w.path) {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		snap := m.snapshotLocked(subPath)
		for _, sub := range group {
			m.notify.deliver(sub, snap)
		}
	}
}

func (m *Memory) snapshotLocked(path string) Snapshot {
	raw, _ := marshalValue(m.getLocked(Split(path)))
	return Snapshot{Path: path, Value: raw, Version: m.versionLocked(path)}
}

func (m *Memory) versionLocked(path string) int64 {
	var version int64
	for written, rev := range m.revs {
		if rev > version && related(written, path) {
			version = rev
		}
	}
	return version
}

func (m *Memory) getLocked(parts []string) any {
	var node any = m.root
	for _, part := range parts {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = obj[part]
		if !ok {
			return nil
		}
	}
	return node
}

func (m *Memory) setLocked(parts []string, value any) {
	if len(parts) == 0 {
		if obj, ok := value.(map[string]any); ok {
			m.root = obj
		} else {
			m.root = make(map[string]any)
		}
		return
	}
	node := m.root
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			if value == nil {
				return
			}
			child = make(map[string]any)
			node[part] = child
		}
		node = child
	}
	last := parts[len(parts)-1]
	if value == nil {
		delete(node, last)
		m.pruneLocked(parts[:len(parts)-1])
		return
	}
	node[last] = value
}

// pruneLocked removes objects left empty by a delete, so an emptied subtree
// reads as missing.
func (m *Memory) pruneLocked(parts []string) {
	for i := len(parts); i > 0; i-- {
		parent, ok := m.getLocked(parts[:i-1]).(map[string]any)
		if !ok {
			return
		}
		child, ok := parent[parts[i-1]].(map[string]any)
		if !ok || len(child) > 0 {
			return
		}
		delete(parent, parts[i-1])
	}
}

func normalize(value any) (any, error) {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 {
			return nil, nil
		}
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return compact(out), nil
}

// compact drops nulls and empty objects, which the tree never stores.
func compact(value any) any {
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}
	for key, child := range obj {
		child = compact(child)
		if child == nil {
			delete(obj, key)
			continue
		}
		obj[key] = child
	}
	if len(obj) == 0 {
		return nil
	}
	return obj
}

func marshalValue(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
