// Package broadcast pushes the product list to connected subscribers.
//
// Each subscriber is a websocket connection registered in a Hub on connect
// and removed on disconnect, write error, or when its send buffer fills up.
// Messages are JSON envelopes:
//
//	server -> client  {"event":"products:update","data":[...]}
//	client -> server  {"event":"products:request"}
//
// A request is answered with a snapshot sent to the asking subscriber only.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Inventory/internal/inventory"
)

const (
	EventUpdate  = "products:update"
	EventRequest = "products:request"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Snapshotter provides the current product list for pull requests.
type Snapshotter interface {
	Snapshot(ctx context.Context) (inventory.Collection, error)
}

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type HubDeps struct {
	Log           *zap.Logger
	Source        Snapshotter
	AllowedOrigin string
	Registry      *prometheus.Registry
}

type Hub struct {
	log      *zap.Logger
	source   Snapshotter
	metrics  *Metrics
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func NewHub(deps HubDeps) *Hub {
	h := &Hub{
		log:    deps.Log,
		source: deps.Source,
		subs:   make(map[string]*subscriber),
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if deps.Registry != nil {
		h.metrics = NewMetrics(deps.Registry)
	}

	origin := deps.AllowedOrigin
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if origin == "" || origin == "*" {
				return true
			}
			o := r.Header.Get("Origin")
			return o == "" || o == origin
		},
	}
	return h
}

// Subscribers reports how many connections are registered.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish sends products to every subscriber. It never blocks on a slow
// subscriber; one whose buffer is full is disconnected instead.
func (h *Hub) Publish(_ context.Context, products inventory.Collection) {
	msg, err := encode(EventUpdate, products)
	if err != nil {
		h.log.Error("encode broadcast failed", zap.Error(err))
		return
	}

	var slow []*subscriber

	h.mu.RLock()
	for _, s := range h.subs {
		select {
		case s.send <- msg:
		case <-s.done:
		default:
			slow = append(slow, s)
		}
	}
	n := len(h.subs)
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warn("dropping slow subscriber", zap.String("subscriber", s.id))
		if h.metrics != nil {
			h.metrics.Drops.Inc()
		}
		h.unregister(s)
	}

	if h.metrics != nil {
		h.metrics.Broadcasts.Inc()
	}
	h.log.Debug("broadcast", zap.Int("subscribers", n), zap.Int("products", len(products)))
}

// ServeHTTP upgrades the request and serves the subscriber until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &subscriber{
		id:   "sub_" + uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		s.close()
		return
	}
	defer h.unregister(s)

	go h.writePump(s)
	h.readPump(r.Context(), s)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for id, s := range h.subs {
		subs = append(subs, s)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	if h.metrics != nil {
		h.metrics.Subscribers.Set(0)
	}
}

func (h *Hub) register(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.subs[s.id] = s
	if h.metrics != nil {
		h.metrics.Subscribers.Inc()
	}
	h.log.Info("subscriber connected", zap.String("subscriber", s.id), zap.String("remote", s.conn.RemoteAddr().String()))
	return true
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s.id]
	if ok {
		delete(h.subs, s.id)
		if h.metrics != nil {
			h.metrics.Subscribers.Dec()
		}
	}
	h.mu.Unlock()

	s.close()
	if ok {
		h.log.Info("subscriber disconnected", zap.String("subscriber", s.id))
	}
}

func (h *Hub) readPump(ctx context.Context, s *subscriber) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("subscriber read failed", zap.String("subscriber", s.id), zap.Error(err))
			}
			return
		}

		var in Envelope
		if err := json.Unmarshal(raw, &in); err != nil {
			h.log.Debug("ignoring malformed message", zap.String("subscriber", s.id), zap.Error(err))
			continue
		}

		switch in.Event {
		case EventRequest:
			h.pull(ctx, s)
		default:
			h.log.Debug("ignoring unknown event", zap.String("subscriber", s.id), zap.String("event", in.Event))
		}
	}
}

// pull answers a subscriber request with a fresh read of the store.
func (h *Hub) pull(ctx context.Context, s *subscriber) {
	if h.source == nil {
		return
	}

	products, err := h.source.Snapshot(ctx)
	if err != nil {
		h.log.Error("snapshot failed", zap.String("subscriber", s.id), zap.Error(err))
		return
	}

	msg, err := encode(EventUpdate, products)
	if err != nil {
		h.log.Error("encode snapshot failed", zap.Error(err))
		return
	}

	select {
	case s.send <- msg:
		if h.metrics != nil {
			h.metrics.Pulls.Inc()
		}
	case <-s.done:
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("subscriber write failed", zap.String("subscriber", s.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func encode(event string, products inventory.Collection) ([]byte, error) {
	if products == nil {
		products = inventory.Collection{}
	}
	data, err := json.Marshal(products)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
