package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"raidlab/internal/sim"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// DefaultStateInterval throttles session:state pushes between events.
	DefaultStateInterval = 100 * time.Millisecond

	wsSendBuffer   = 64
	wsPingInterval = 20 * time.Second
	wsWriteWait    = 10 * time.Second
	wsReadWait     = 60 * time.Second
	wsMaxMessage   = 4096
)

// LiveHubConfig sets connection limits for the live session socket.
type LiveHubConfig struct {
	MaxPerIP      int
	MaxTotal      int
	Origins       []string
	StateInterval time.Duration
}

// wsClient is one socket watching one session. send is never closed;
// done signals shutdown so late publishers cannot panic.
type wsClient struct {
	conn *websocket.Conn
	ip   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn, ip string) *wsClient {
	return &wsClient{
		conn: conn,
		ip:   ip,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// enqueue drops the message when the client is slow (backpressure).
func (c *wsClient) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- b:
		IncrementWSMessages()
		return true
	default:
		return false
	}
}

// wsEvent is the envelope for every server push.
type wsEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// wsCommand is a client message. Input fields are used by "input",
// Key and Pressed by "key".
type wsCommand struct {
	Type string `json:"type"`
	sim.Input
	Key     string `json:"key"`
	Pressed bool   `json:"pressed"`
}

// LiveHub fans session frames out to websocket clients and feeds their
// commands back into the session.
type LiveHub struct {
	upgrader      websocket.Upgrader
	wsLimiter     *WebSocketRateLimiter
	maxTotal      int
	stateInterval time.Duration

	mu        sync.RWMutex
	rooms     map[string]map[*wsClient]struct{}
	total     int
	lastState map[string]time.Time
}

// NewLiveHub creates a hub. Zero config values pick the package defaults.
func NewLiveHub(cfg LiveHubConfig) *LiveHub {
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = MaxWSConnectionsPerIP
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = MaxWSConnectionsTotal
	}
	if cfg.StateInterval <= 0 {
		cfg.StateInterval = DefaultStateInterval
	}
	origins := NewOriginChecker(cfg.Origins)
	return &LiveHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		wsLimiter:     NewWebSocketRateLimiter(cfg.MaxPerIP),
		maxTotal:      cfg.MaxTotal,
		stateInterval: cfg.StateInterval,
		rooms:         make(map[string]map[*wsClient]struct{}),
		lastState:     make(map[string]time.Time),
	}
}

// ClientCount returns the number of connected clients
func (h *LiveHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Watchers returns the number of clients attached to one session.
func (h *LiveHub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// Publish pushes one finished frame to the session's clients. It has the
// sim.FrameHook shape minus timing and is cheap when nobody is watching.
func (h *LiveHub) Publish(snap *sim.Snapshot, res sim.StepResult) {
	if snap == nil {
		return
	}
	eventful := res.Announcement != nil || len(res.Resolutions) > 0 || res.GameOver || !snap.IsRunning

	h.mu.Lock()
	room := h.rooms[snap.SessionID]
	if len(room) == 0 {
		h.mu.Unlock()
		return
	}
	now := time.Now()
	sendState := eventful || now.Sub(h.lastState[snap.SessionID]) >= h.stateInterval
	if sendState {
		h.lastState[snap.SessionID] = now
	}
	clients := make([]*wsClient, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	var msgs [][]byte
	if res.Announcement != nil {
		msgs = appendEvent(msgs, "session:announce", res.Announcement)
	}
	if len(res.Resolutions) > 0 {
		msgs = appendEvent(msgs, "session:resolve", res.Resolutions)
	}
	if sendState {
		msgs = appendEvent(msgs, "session:state", snap)
	}
	for _, c := range clients {
		for _, m := range msgs {
			c.enqueue(m)
		}
	}
}

func appendEvent(msgs [][]byte, event string, data interface{}) [][]byte {
	b, err := json.Marshal(wsEvent{Event: event, Data: data})
	if err != nil {
		log.Printf("⚠️ Failed to encode %s: %v", event, err)
		return msgs
	}
	return append(msgs, b)
}

// broadcastState sends the current snapshot regardless of throttling.
// Used after control commands, which change state outside a frame.
func (h *LiveHub) broadcastState(snap *sim.Snapshot) {
	msgs := appendEvent(nil, "session:state", snap)
	if len(msgs) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[snap.SessionID] {
		c.enqueue(msgs[0])
	}
}

// Serve upgrades the request and attaches the socket to sess until either
// side closes.
func (h *LiveHub) Serve(w http.ResponseWriter, r *http.Request, sess *sim.Session) {
	ip := GetClientIP(r)

	if h.ClientCount() >= h.maxTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", h.maxTotal)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed from %s: %v", ip, err)
		h.wsLimiter.Release(ip)
		return
	}

	client := newWSClient(conn, ip)
	h.add(sess.ID(), client)

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadWait))
	})

	go h.writePump(sess.ID(), client)

	if msgs := appendEvent(nil, "session:state", sess.Snapshot()); len(msgs) > 0 {
		client.enqueue(msgs[0])
	}

	defer func() {
		h.remove(sess.ID(), client)
		client.close()
	}()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		h.apply(sess, cmd)
	}
}

func (h *LiveHub) apply(sess *sim.Session, cmd wsCommand) {
	switch cmd.Type {
	case "input":
		sess.SetInput(cmd.Input)
	case "key":
		if k, ok := parseKey(cmd.Key); ok {
			sess.SetKey(k, cmd.Pressed)
		}
	case "start":
		sess.Start()
		h.broadcastState(sess.Snapshot())
	case "restart":
		sess.Restart()
		h.broadcastState(sess.Snapshot())
	case "stop":
		sess.Stop()
		h.broadcastState(sess.Snapshot())
	}
}

func parseKey(s string) (sim.Key, bool) {
	switch strings.ToLower(s) {
	case "up", "w", "arrowup":
		return sim.KeyUp, true
	case "down", "s", "arrowdown":
		return sim.KeyDown, true
	case "left", "a", "arrowleft":
		return sim.KeyLeft, true
	case "right", "d", "arrowright":
		return sim.KeyRight, true
	}
	return 0, false
}

func (h *LiveHub) writePump(sessionID string, c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer func() {
		h.remove(sessionID, c)
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *LiveHub) add(sessionID string, c *wsClient) {
	h.mu.Lock()
	room := h.rooms[sessionID]
	if room == nil {
		room = make(map[*wsClient]struct{})
		h.rooms[sessionID] = room
	}
	room[c] = struct{}{}
	h.total++
	count := h.total
	h.mu.Unlock()

	log.Printf("📱 Client %s watching session %s (%d total)", c.ip, sessionID, count)
	UpdateWSConnections(count)
}

// remove is idempotent; the read loop and the write pump both call it.
func (h *LiveHub) remove(sessionID string, c *wsClient) {
	h.mu.Lock()
	room := h.rooms[sessionID]
	if _, ok := room[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
		delete(h.lastState, sessionID)
	}
	h.total--
	count := h.total
	h.mu.Unlock()

	h.wsLimiter.Release(c.ip)
	log.Printf("📱 Client %s left session %s (%d remaining)", c.ip, sessionID, count)
	UpdateWSConnections(count)
}

// CloseSession disconnects every client of a deleted session.
func (h *LiveHub) CloseSession(sessionID string) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.rooms[sessionID]))
	for c := range h.rooms[sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(sessionID, c)
		c.close()
	}
}

// Prune disconnects clients whose session no longer exists.
func (h *LiveHub) Prune(alive func(sessionID string) bool) {
	h.mu.RLock()
	var dead []string
	for id := range h.rooms {
		if !alive(id) {
			dead = append(dead, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range dead {
		h.CloseSession(id)
	}
}

// CloseAll disconnects every client. Used on shutdown.
func (h *LiveHub) CloseAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.CloseSession(id)
	}
}
