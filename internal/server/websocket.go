package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"traitors-table/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 256
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	maxFrameBytes    = 1 << 20
	requestTimeout   = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[*wsClient]struct{})}
}

func (h *wsHub) add(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *wsHub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()
	for _, client := range clients {
		client.close("server shutting down")
	}
}

// wsClient is one connection. Frames go out through send, drained by a single
// writer goroutine; a client that falls behind is dropped rather than allowed
// to stall store notifications.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	hub  *wsHub

	mu     sync.Mutex
	subs   map[string]func()
	closed bool
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		done: make(chan struct{}),
		hub:  s.hub,
		subs: make(map[string]func()),
	}
	s.hub.add(client)
	s.log.Info().Str("conn_id", client.id).Str("remote", c.Request.RemoteAddr).Msg("ws connected")
	go client.writeLoop()
	go s.readWS(client)
}

func (s *Server) readWS(client *wsClient) {
	defer client.close("read loop ended")
	client.conn.SetReadLimit(maxFrameBytes)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			s.log.Info().Str("conn_id", client.id).Err(err).Msg("ws disconnected")
			return
		}
		var req store.Request
		if err := json.Unmarshal(data, &req); err != nil {
			client.push(store.Response{Type: store.TypeResult, Error: "malformed request"})
			continue
		}
		if resp, ok := s.handleRequest(client, req); ok {
			client.push(resp)
		}
	}
}

// handleRequest applies one protocol request. Subscription changes carry no
// id and get no result frame; their effect is the value pushes.
func (s *Server) handleRequest(client *wsClient, req store.Request) (store.Response, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp := store.Response{Type: store.TypeResult, ID: req.ID, Path: store.Clean(req.Path)}
	var err error
	switch req.Op {
	case store.OpSubscribe:
		if !store.ValidPath(req.Path) {
			err = store.ErrInvalidPath
			break
		}
		client.subscribe(s.store, resp.Path)
		resp.OK = true
	case store.OpUnsubscribe:
		client.unsubscribe(resp.Path)
		resp.OK = true
	case store.OpRead:
		var snap store.Snapshot
		snap, err = s.store.Read(ctx, req.Path)
		resp.Value, resp.Version, resp.OK = snap.Value, snap.Version, err == nil
	case store.OpWrite:
		err = s.store.Write(ctx, req.Path, req.Value)
		resp.OK = err == nil
	case store.OpUpdate:
		var fields map[string]any
		if fields, err = req.Fields(); err == nil {
			err = s.store.Update(ctx, req.Path, fields)
		}
		resp.OK = err == nil
	case store.OpCompareSwap:
		resp.OK, err = s.store.CompareAndSwap(ctx, req.Path, req.Version, req.Value)
	default:
		err = errors.New("unknown op: " + req.Op)
	}
	if err != nil {
		resp.OK = false
		resp.Error = err.Error()
		s.log.Warn().Str("conn_id", client.id).Str("op", req.Op).Str("path", resp.Path).Err(err).Msg("ws request failed")
	}
	if req.ID == "" && err == nil {
		return resp, false
	}
	return resp, true
}

func (c *wsClient) subscribe(mem *store.Memory, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, ok := c.subs[path]; ok {
		return
	}
	c.subs[path] = mem.Subscribe(path, func(snap store.Snapshot) {
		c.push(valueFrame(snap))
	})
}

func (c *wsClient) unsubscribe(path string) {
	c.mu.Lock()
	unsubscribe, ok := c.subs[path]
	delete(c.subs, path)
	c.mu.Unlock()
	if ok {
		unsubscribe()
	}
}

func (c *wsClient) push(resp store.Response) {
	data, err := encodeFrame(resp)
	if err != nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.close("send buffer full")
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close("ping failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.done)
	c.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
	c.hub.remove(c)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(time.Second))
	_ = c.conn.Close()
}
