package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/identity"
)

const (
	defaultSendQueue    = 64
	defaultInboxSize    = 32
	defaultPingInterval = 25 * time.Second
	defaultWriteTimeout = 5 * time.Second
	tokenCookie         = "token"
)

// Dispatcher consumes inbound events. The arena coordinator implements it.
type Dispatcher interface {
	Bind(connID, userID string)
	Handle(ctx context.Context, connID, event string, data json.RawMessage)
	Disconnect(connID string)
}

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Options struct {
	AllowedOrigins []string
	Resolver       identity.Resolver
	SendQueue      int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	Logger         *zap.Logger
}

// Hub accepts WebSocket clients and routes frames between them and a Dispatcher.
type Hub struct {
	dispatcher Dispatcher
	resolver   identity.Resolver
	origins    []string
	sendQueue  int
	ping       time.Duration
	writeTO    time.Duration
	log        *zap.Logger

	mu    sync.RWMutex
	conns map[string]*client
}

type client struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan outFrame
	ctx    context.Context
	cancel context.CancelFunc

	overflow sync.Once
}

func NewHub(opts Options) *Hub {
	h := &Hub{
		resolver:  opts.Resolver,
		origins:   originPatterns(opts.AllowedOrigins),
		sendQueue: opts.SendQueue,
		ping:      opts.PingInterval,
		writeTO:   opts.WriteTimeout,
		log:       opts.Logger,
		conns:     make(map[string]*client),
	}
	if h.sendQueue <= 0 {
		h.sendQueue = defaultSendQueue
	}
	if h.ping <= 0 {
		h.ping = defaultPingInterval
	}
	if h.writeTO <= 0 {
		h.writeTO = defaultWriteTimeout
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	return h
}

// Attach sets the dispatcher. It must be called before the hub serves traffic.
func (h *Hub) Attach(d Dispatcher) { h.dispatcher = d }

func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Emit queues one frame for a connection. Unknown connections are ignored. A full queue closes the
// connection with a policy status; the client reconnects and rejoins to resynchronise.
func (h *Hub) Emit(connID, event string, payload any) {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	select {
	case <-c.ctx.Done():
	case c.send <- outFrame{Event: event, Data: payload}:
	default:
		c.overflow.Do(func() {
			h.log.Warn("ws_send_queue_full", zap.String("conn_id", connID), zap.String("event", event))
			go func() { _ = c.ws.Close(websocket.StatusPolicyViolation, "send queue full") }()
		})
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	userID, err := h.identify(r)
	if err != nil {
		h.log.Info("ws_auth_rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.log.Warn("ws_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan outFrame, h.sendQueue),
		ctx:    ctx,
		cancel: cancel,
	}
	h.register(c)
	h.log.Info("ws_connected", zap.String("conn_id", c.id), zap.String("user_id", userID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(c)
	}()

	inbox := make(chan Frame, defaultInboxSize)
	handled := make(chan struct{})
	go func() {
		defer close(handled)
		for f := range inbox {
			h.dispatcher.Handle(ctx, c.id, f.Event, f.Data)
		}
	}()

	if userID != "" {
		h.dispatcher.Bind(c.id, userID)
	}
	h.Emit(c.id, "connected", map[string]string{"socketId": c.id, "userId": userID})

	h.readLoop(c, inbox)
	close(inbox)
	<-handled

	h.dispatcher.Disconnect(c.id)
	h.unregister(c.id)
	cancel()
	<-done
	_ = ws.Close(websocket.StatusNormalClosure, "")
	h.log.Info("ws_disconnected", zap.String("conn_id", c.id))
}

func (h *Hub) readLoop(c *client, inbox chan<- Frame) {
	for {
		var f Frame
		if err := wsjson.Read(c.ctx, c.ws, &f); err != nil {
			if !isClosure(err) {
				h.log.Debug("ws_read_failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if strings.TrimSpace(f.Event) == "" {
			continue
		}
		select {
		case inbox <- f:
		case <-c.ctx.Done():
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	t := time.NewTicker(h.ping)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.send:
			wctx, cancel := context.WithTimeout(c.ctx, h.writeTO)
			err := wsjson.Write(wctx, c.ws, f)
			cancel()
			if err != nil {
				h.log.Debug("ws_write_failed", zap.String("conn_id", c.id), zap.Error(err))
				c.cancel()
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(c.ctx, h.writeTO)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				h.log.Debug("ws_ping_failed", zap.String("conn_id", c.id), zap.Error(err))
				c.cancel()
				return
			}
		}
	}
}

// Shutdown closes every open connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
		c.cancel()
	}
}

func (h *Hub) identify(r *http.Request) (string, error) {
	if h.resolver == nil {
		return "", nil
	}
	token := r.URL.Query().Get(tokenCookie)
	if ck, err := r.Cookie(tokenCookie); err == nil && ck.Value != "" {
		token = ck.Value
	}
	if strings.TrimSpace(token) == "" {
		return "", nil
	}
	return h.resolver.Resolve(r.Context(), token)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// originPatterns converts configured origins to the host patterns websocket.Accept matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func isClosure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
