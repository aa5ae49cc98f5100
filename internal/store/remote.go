package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	remoteWriteTimeout = 5 * time.Second
	minReconnectDelay  = 250 * time.Millisecond
	maxReconnectDelay  = 5 * time.Second
)

// Remote is a Store backed by the store server over a websocket. It
// reconnects on its own and re-subscribes, which replays the latest value of
// every watched path.
type Remote struct {
	url    string
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan Response
	subs    map[string]map[uint64]*subscriber
	last    map[string]Snapshot
	nextSub uint64
	closed  bool

	writeMu sync.Mutex
	notify  *dispatcher
	done    chan struct{}
}

var (
	_ Store       = (*Remote)(nil)
	_ Conditional = (*Remote)(nil)
)

func DialRemote(ctx context.Context, url string, log zerolog.Logger) (*Remote, error) {
	r := &Remote{
		url:     url,
		dialer:  websocket.DefaultDialer,
		log:     log.With().Str("component", "remote_store").Logger(),
		pending: make(map[string]chan Response),
		subs:    make(map[string]map[uint64]*subscriber),
		last:    make(map[string]Snapshot),
		notify:  newDispatcher(),
		done:    make(chan struct{}),
	}
	conn, _, err := r.dialer.DialContext(ctx, url, nil)
	if err != nil {
		r.notify.close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	r.conn = conn
	go r.readLoop(conn)
	return r, nil
}

func (r *Remote) Subscribe(path string, fn func(Snapshot)) func() {
	path = Clean(path)
	r.mu.Lock()
	r.nextSub++
	sub := &subscriber{id: r.nextSub, path: path, fn: fn}
	sub.active.Store(true)
	group := r.subs[path]
	first := group == nil
	if first {
		group = make(map[uint64]*subscriber)
		r.subs[path] = group
	}
	group[sub.id] = sub
	if snap, ok := r.last[path]; ok {
		r.notify.deliver(sub, snap)
	}
	conn := r.conn
	r.mu.Unlock()

	if first && conn != nil {
		if err := r.send(conn, Request{Op: OpSubscribe, Path: path}); err != nil {
			r.log.Warn().Err(err).Str("path", path).Msg("subscribe deferred until reconnect")
		}
	}
	return func() {
		r.mu.Lock()
		sub.active.Store(false)
		group := r.subs[path]
		if group != nil {
			delete(group, sub.id)
		}
		empty := group != nil && len(group) == 0
		if empty {
			delete(r.subs, path)
			delete(r.last, path)
		}
		conn := r.conn
		r.mu.Unlock()
		if empty && conn != nil {
			_ = r.send(conn, Request{Op: OpUnsubscribe, Path: path})
		}
	}
}

func (r *Remote) Read(ctx context.Context, path string) (Snapshot, error) {
	resp, err := r.request(ctx, Request{Op: OpRead, Path: Clean(path)})
	if err != nil {
		return Snapshot{}, err
	}
	return resp.Snapshot(), nil
}

func (r *Remote) Write(ctx context.Context, path string, value any) error {
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}
	_, err = r.request(ctx, Request{Op: OpWrite, Path: Clean(path), Value: raw})
	return err
}

func (r *Remote) Update(ctx context.Context, path string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = r.request(ctx, Request{Op: OpUpdate, Path: Clean(path), Value: raw})
	return err
}

func (r *Remote) CompareAndSwap(ctx context.Context, path string, version int64, value any) (bool, error) {
	raw, err := encodeValue(value)
	if err != nil {
		return false, err
	}
	resp, err := r.request(ctx, Request{Op: OpCompareSwap, Path: Clean(path), Value: raw, Version: version})
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// Sync blocks until pushes already received have been delivered.
func (r *Remote) Sync() {
	r.notify.wait()
}

func (r *Remote) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.conn = nil
	close(r.done)
	r.failPendingLocked()
	r.mu.Unlock()
	r.notify.close()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

func (r *Remote) request(ctx context.Context, req Request) (Response, error) {
	req.ID = uuid.NewString()
	reply := make(chan Response, 1)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Response{}, ErrClosed
	}
	conn := r.conn
	if conn == nil {
		r.mu.Unlock()
		return Response{}, ErrUnavailable
	}
	r.pending[req.ID] = reply
	r.mu.Unlock()

	if err := r.send(conn, req); err != nil {
		r.forget(req.ID)
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	select {
	case resp, ok := <-reply:
		if !ok {
			return Response{}, ErrUnavailable
		}
		if resp.Error != "" {
			return resp, errorFromWire(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		r.forget(req.ID)
		return Response{}, ctx.Err()
	}
}

func (r *Remote) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

func (r *Remote) send(conn *websocket.Conn, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(remoteWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (r *Remote) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !r.dropConn(conn) {
				return
			}
			r.log.Warn().Err(err).Msg("store connection lost")
			next, ok := r.reconnect()
			if !ok {
				return
			}
			conn = next
			continue
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			r.log.Warn().Err(err).Msg("bad frame from store")
			continue
		}
		r.handle(resp)
	}
}

func (r *Remote) handle(resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch resp.Type {
	case TypeValue:
		snap := resp.Snapshot()
		group := r.subs[snap.Path]
		if group == nil {
			return
		}
		r.last[snap.Path] = snap
		for _, sub := range group {
			r.notify.deliver(sub, snap)
		}
	case TypeResult:
		reply, ok := r.pending[resp.ID]
		if !ok {
			return
		}
		delete(r.pending, resp.ID)
		reply <- resp
	}
}

// dropConn detaches a dead connection and fails in-flight requests. It
// returns false once the store has been closed.
func (r *Remote) dropConn(conn *websocket.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == conn {
		r.conn = nil
	}
	_ = conn.Close()
	r.failPendingLocked()
	return !r.closed
}

func (r *Remote) failPendingLocked() {
	for id, reply := range r.pending {
		close(reply)
		delete(r.pending, id)
	}
}

func (r *Remote) reconnect() (*websocket.Conn, bool) {
	delay := minReconnectDelay
	for {
		select {
		case <-r.done:
			return nil, false
		case <-time.After(delay):
		}
		conn, _, err := r.dialer.Dial(r.url, nil)
		if err != nil {
			r.log.Debug().Err(err).Dur("retry_in", delay).Msg("store reconnect failed")
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			_ = conn.Close()
			return nil, false
		}
		r.conn = conn
		paths := make([]string, 0, len(r.subs))
		for path := range r.subs {
			paths = append(paths, path)
		}
		r.mu.Unlock()
		for _, path := range paths {
			if err := r.send(conn, Request{Op: OpSubscribe, Path: path}); err != nil {
				r.log.Warn().Err(err).Str("path", path).Msg("resubscribe failed")
			}
		}
		r.log.Info().Int("paths", len(paths)).Msg("store reconnected")
		return conn, true
	}
}

func encodeValue(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
}
