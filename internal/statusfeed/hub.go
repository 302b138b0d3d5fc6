// Package statusfeed publishes the bridge's status, context flags and
// prompts to editor front ends over a websocket, and routes their answers
// and commands back.
package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/turtacn/lspbridge/internal/connection"
	"github.com/turtacn/lspbridge/pkg/consts"
	"github.com/turtacn/lspbridge/pkg/logger"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 64
)

// Commands are the editor commands a front end may invoke.
type Commands interface {
	StartLanguageServer(ctx context.Context) error
	StopLanguageServer(ctx context.Context) error
	CheckStatus(ctx context.Context) error
}

type pending struct {
	payload PromptPayload
	reply   func(string)
}

// Hub implements connection.UI on top of any number of websocket clients.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]bool
	status   connection.StatusView
	context  map[string]bool
	prompts  map[string]*pending
	order    []string
	commands Commands
	origins  map[string]bool

	upgrader websocket.Upgrader
	log      logger.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

func NewHub() *Hub {
	h := &Hub{
		clients: make(map[*client]bool),
		context: make(map[string]bool),
		prompts: make(map[string]*pending),
		origins: make(map[string]bool),
		log:     logger.Named("statusfeed"),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// SetAllowedOrigins adds origins (scheme://host[:port]) accepted besides
// loopback pages and clients that send no Origin.
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, o := range origins {
		if o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/"); o != "" {
			h.origins[o] = true
		}
	}
}

// checkOrigin rejects upgrades from browser pages served by other hosts.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if isLoopback(u.Hostname()) {
		return true
	}

	h.mu.Lock()
	ok := h.origins[strings.ToLower(u.Scheme+"://"+u.Host)]
	h.mu.Unlock()
	if !ok {
		h.log.Warn("rejected websocket origin", "origin", origin, "remote", r.RemoteAddr)
	}
	return ok
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// SetCommands enables command messages from front ends.
func (h *Hub) SetCommands(c Commands) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = c
}

// Handler returns the feed routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("GET /status", h.handleStatus)
	return mux
}

// Serve runs the feed on addr until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Handler()}
	errCh := make(chan error, 1)
	go func() {
		h.log.Info("status feed listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.closeClients()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SetStatus implements connection.UI.
func (h *Hub) SetStatus(v connection.StatusView) {
	h.mu.Lock()
	h.status = v
	h.mu.Unlock()
	h.broadcast(TypeStatus, v)
}

// SetContext implements connection.UI.
func (h *Hub) SetContext(key string, value bool) {
	h.mu.Lock()
	h.context[key] = value
	h.mu.Unlock()
	h.broadcast(TypeContext, ContextPayload{Key: key, Value: value})
}

// ShowInfo implements connection.UI.
func (h *Hub) ShowInfo(msg string, actions []string, reply func(string)) {
	h.prompt(PromptPayload{Kind: KindInfo, Message: msg, Actions: actions}, reply)
}

// ShowError implements connection.UI.
func (h *Hub) ShowError(msg string, actions []string, reply func(string)) {
	h.prompt(PromptPayload{Kind: KindError, Message: msg, Actions: actions}, reply)
}

// SelectExecutable implements connection.UI.
func (h *Hub) SelectExecutable(setting string, reply func(string)) {
	h.prompt(PromptPayload{
		Kind:    KindSelectExecutable,
		Message: "Select Godot executable",
		Setting: setting,
	}, reply)
}

// Connected reports the last published connected context flag.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.context[consts.ContextConnected]
}

// Pending returns the prompts still waiting for an answer, oldest first.
func (h *Hub) Pending() []PromptPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PromptPayload, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.prompts[id].payload)
	}
	return out
}

func (h *Hub) prompt(p PromptPayload, reply func(string)) {
	p.ID = uuid.New().String()
	h.log.Info("prompt", "kind", p.Kind, "id", p.ID, "message", p.Message, "actions", p.Actions)

	h.mu.Lock()
	h.prompts[p.ID] = &pending{payload: p, reply: reply}
	h.order = append(h.order, p.ID)
	h.mu.Unlock()

	h.broadcast(TypePrompt, p)
}

// answer resolves a prompt once; unknown or already answered ids are ignored.
func (h *Hub) answer(a AnswerPayload) bool {
	h.mu.Lock()
	p, ok := h.prompts[a.ID]
	if ok {
		delete(h.prompts, a.ID)
		for i, id := range h.order {
			if id == a.ID {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
	h.mu.Unlock()
	if !ok {
		return false
	}

	value := a.Action
	if p.payload.Kind == KindSelectExecutable {
		value = a.Path
	}
	if p.reply != nil {
		p.reply(value)
	}
	return true
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	v := h.status
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), hub: h}

	// Register and queue the snapshot under one lock so no broadcast
	// slips in between.
	h.mu.Lock()
	h.clients[c] = true
	c.enqueue(TypeStatus, h.status)
	for key, value := range h.context {
		c.enqueue(TypeContext, ContextPayload{Key: key, Value: value})
	}
	for _, id := range h.order {
		c.enqueue(TypePrompt, h.prompts[id].payload)
	}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) broadcast(msgType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.enqueue(msgType, payload)
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) handleMessage(c *client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid message: " + err.Error())
		return
	}

	switch msg.Type {
	case TypeAnswer:
		var a AnswerPayload
		if err := json.Unmarshal(msg.Payload, &a); err != nil || a.ID == "" {
			c.sendError("invalid answer")
			return
		}
		if !h.answer(a) {
			c.sendError("unknown prompt " + a.ID)
			return
		}
		// Other front ends drop the prompt once anyone answers it
		h.broadcast(TypeAnswer, AnswerPayload{ID: a.ID})

	case TypeCommand:
		var cmd CommandPayload
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			c.sendError("invalid command")
			return
		}
		h.runCommand(c, cmd.Name)

	default:
		c.sendError("unknown message type " + msg.Type)
	}
}

func (h *Hub) runCommand(c *client, name string) {
	h.mu.Lock()
	cmds := h.commands
	h.mu.Unlock()
	if cmds == nil {
		c.sendError("commands unavailable")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch name {
	case consts.CommandStartServer:
		err = cmds.StartLanguageServer(ctx)
	case consts.CommandStopServer:
		err = cmds.StopLanguageServer(ctx)
	case consts.CommandCheckStatus:
		err = cmds.CheckStatus(ctx)
	default:
		c.sendError("unknown command " + name)
		return
	}
	if err != nil {
		c.sendError(err.Error())
	}
}

// enqueue must be called with the hub lock held.
func (c *client) enqueue(msgType string, payload any) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow consumer, drop
	}
}

func (c *client) sendError(text string) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if c.hub.clients[c] {
		c.enqueue(TypeError, ErrorPayload{Message: text})
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("websocket read error", "err", err)
			}
			return
		}
		c.hub.handleMessage(c, message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Personal.AI order the ending
