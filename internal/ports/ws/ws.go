// Package ws is the WebSocket multiplex (spec.md §4.K / §6): one
// connection per operator carrying both the chat turn stream (chat_user,
// chat_chunk, chat_done) and the notification fan-out (notification,
// unread_notifications) described in spec.md's external interfaces
// section, plus a ping/pong heartbeat.
//
// It runs on its own net/http server bound to NYX_PORT, separate from the
// fiber-based Control API on NYX_API_PORT, because fiber's fasthttp
// transport cannot host a gorilla/websocket.Upgrader directly. Grounded
// on _examples/msto63-mDW/internal/kant/handler/websocket.go's
// Upgrader/ServeHTTP/handleConnection shape, adapted to the multiplexed
// frame set above and gated by the same access-control and JWT checks the
// Control API applies.
package ws

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nyxlight/ledger/internal/domain/access"
	"github.com/nyxlight/ledger/internal/domain/notify"
	"github.com/nyxlight/ledger/internal/domain/session"
	"github.com/nyxlight/ledger/internal/platform/mlog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Frame is the envelope every message on the socket uses, discriminated
// by Type (spec.md §6: chat_user, chat_chunk, chat_done, notification,
// unread_notifications, ping, pong).
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChatUserPayload is the client->server chat_user frame body.
type ChatUserPayload struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// ChatDonePayload is the server->client chat_done frame body.
type ChatDonePayload struct {
	ModuleUsed string         `json:"module_used"`
	ModuleData map[string]any `json:"module_data,omitempty"`
}

// ChatBackend is the external LLM collaborator the hub dispatches
// chat_user frames to, mirroring internal/ports/http's ChatBackend so
// both ports share one implementation.
type ChatBackend interface {
	Complete(ctx context.Context, userID, clientID, message string) (reply, moduleUsed string, moduleData map[string]any, err error)
}

// Authenticator verifies the bearer token carried on the connection's
// query string (there is no header-based handshake on a raw net/http
// Upgrade request).
type Authenticator interface {
	ParseUserID(token string) (string, error)
}

// Hub owns the upgrader and every connected client; each client implements
// notify.Sender, delivering a Notification to its one connection.
type Hub struct {
	log      mlog.Logger
	access   *access.Controller
	port     int
	auth     Authenticator
	sessions *session.Manager
	notifier *notify.Manager
	chat     ChatBackend

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// New builds a Hub bound to a specific listening port (NYX_PORT), used
// by the access-control check to select the right per-port policy.
func New(log mlog.Logger, ac *access.Controller, port int, auth Authenticator, sessions *session.Manager, notifier *notify.Manager, chat ChatBackend) *Hub {
	h := &Hub{
		log:      log,
		access:   ac,
		port:     port,
		auth:     auth,
		sessions: sessions,
		notifier: notifier,
		chat:     chat,
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	return h
}

// ServeHTTP upgrades the connection after applying the same access
// control and token checks the Control API applies to its own port.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if decision := h.access.Evaluate(host, h.port); !decision.Allowed {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	token := r.URL.Query().Get("token")

	userID, err := h.auth.ParseUserID(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("ws upgrade failed: %v", err)
		return
	}

	cl := &client{userID: userID, conn: conn, send: make(chan []byte, 32)}

	h.register(cl)
	defer h.unregister(cl)

	h.sendUnread(cl)

	go h.writePump(cl)
	h.readPump(cl)
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl.userID] = cl
	h.mu.Unlock()

	h.notifier.Register(cl.userID, cl)
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if h.clients[cl.userID] == cl {
		delete(h.clients, cl.userID)
	}
	h.mu.Unlock()

	h.notifier.Unregister(cl.userID, cl)
	close(cl.send)
	_ = cl.conn.Close()
}

func (h *Hub) sendUnread(cl *client) {
	unread := h.notifier.GetUnread(cl.userID)
	if len(unread) == 0 {
		return
	}

	cl.writeFrame("unread_notifications", unread)
}

func (h *Hub) readPump(cl *client) {
	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := cl.conn.ReadJSON(&frame); err != nil {
			return
		}

		h.dispatch(cl, frame)
	}
}

func (h *Hub) dispatch(cl *client, frame Frame) {
	switch frame.Type {
	case "ping":
		cl.writeFrame("pong", nil)
	case "chat_user":
		var payload ChatUserPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return
		}

		go h.runChat(cl, payload)
	}
}

func (h *Hub) runChat(cl *client, payload ChatUserPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	reply, moduleUsed, moduleData, err := h.chat.Complete(ctx, cl.userID, payload.ClientID, payload.Message)
	if err != nil {
		cl.writeFrame("chat_chunk", map[string]string{"error": err.Error()})
		return
	}

	cl.writeFrame("chat_chunk", map[string]string{"text": reply})
	cl.writeFrame("chat_done", ChatDonePayload{ModuleUsed: moduleUsed, ModuleData: moduleData})

	if sess := h.sessions.GetByUser(cl.userID); sess != nil {
		h.sessions.RecordMessage(sess.ID)
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}

			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) writeFrame(typ string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}

	body, err := json.Marshal(Frame{Type: typ, Payload: raw})
	if err != nil {
		return
	}

	select {
	case c.send <- body:
	default:
	}
}

// Send implements notify.Sender, delivering a notification frame to this
// connection.
func (c *client) Send(payload any) error {
	c.writeFrame("notification", payload)
	return nil
}

// StaticTokenAuthenticator adapts internal/ports/http's Authenticator to
// the ws.Authenticator interface by verifying the same HS256 token.
type StaticTokenAuthenticator struct {
	Secret []byte
}

type wsClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// ParseUserID verifies the token and returns its subject's user id.
func (a StaticTokenAuthenticator) ParseUserID(token string) (string, error) {
	claims := &wsClaims{}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}

	return claims.UserID, nil
}
