package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"miniapp-games/internal/models"
	"miniapp-games/internal/services"
)

const (
	MessageDiceTick      = "DICE_TICK"
	MessageDiceResult    = "DICE_RESULT"
	MessageDiceFailed    = "DICE_FAILED"
	MessageBalanceUpdate = "BALANCE_UPDATE"
	MessagePing          = "PING"
	MessagePong          = "PONG"

	writeWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	UserID string
	Conn   *websocket.Conn
}

type Message struct {
	Type   string `json:"type"`
	UserID string `json:"-"`
	Data   any    `json:"data"`
}

// WebSocketHub fans round updates out to every open connection of a player.
// All writes happen on the hub goroutine.
type WebSocketHub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	logger     *zap.Logger
}

var _ services.Broadcaster = (*WebSocketHub)(nil)

func NewWebSocketHub(logger *zap.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		logger:     logger.With(zap.String("component", "websocket")),
	}

	go hub.run()
	return hub
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			conns, ok := hub.clients[client.UserID]
			if !ok {
				conns = make(map[*Client]struct{})
				hub.clients[client.UserID] = conns
			}
			conns[client] = struct{}{}
			hub.logger.Debug("client registered", zap.String("user_id", client.UserID))

		case client := <-hub.unregister:
			if conns, ok := hub.clients[client.UserID]; ok {
				delete(conns, client)
				if len(conns) == 0 {
					delete(hub.clients, client.UserID)
				}
				hub.logger.Debug("client unregistered", zap.String("user_id", client.UserID))
			}

		case message := <-hub.broadcast:
			hub.deliver(message)

		case <-hub.done:
			for _, conns := range hub.clients {
				for client := range conns {
					client.Conn.Close()
				}
			}
			return
		}
	}
}

func (hub *WebSocketHub) deliver(message *Message) {
	for client := range hub.clients[message.UserID] {
		client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.Conn.WriteJSON(message); err != nil {
			hub.logger.Debug("websocket write failed", zap.String("user_id", client.UserID), zap.Error(err))
		}
	}
}

func (hub *WebSocketHub) send(msg *Message) {
	select {
	case hub.broadcast <- msg:
	case <-hub.done:
	}
}

func (hub *WebSocketHub) Close() {
	select {
	case <-hub.done:
	default:
		close(hub.done)
	}
}

func (hub *WebSocketHub) BroadcastDiceTick(userID, roundID string, value float64) {
	hub.send(&Message{
		Type:   MessageDiceTick,
		UserID: userID,
		Data: gin.H{
			"round_id": roundID,
			"value":    value,
		},
	})
}

func (hub *WebSocketHub) BroadcastDiceResult(userID string, round *models.Round) {
	hub.send(&Message{
		Type:   MessageDiceResult,
		UserID: userID,
		Data:   round,
	})
}

func (hub *WebSocketHub) BroadcastDiceFailed(userID, roundID, message string) {
	hub.send(&Message{
		Type:   MessageDiceFailed,
		UserID: userID,
		Data: gin.H{
			"round_id": roundID,
			"error":    message,
		},
	})
}

func (hub *WebSocketHub) BroadcastBalance(userID string, wallet *models.WalletSnapshot) {
	hub.send(&Message{
		Type:   MessageBalanceUpdate,
		UserID: userID,
		Data:   wallet,
	})
}

type WebSocketHandler struct {
	hub      *WebSocketHub
	sessions *services.SessionManager
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *WebSocketHub, sessions *services.SessionManager, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		sessions: sessions,
		logger:   logger.With(zap.String("component", "websocket")),
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
		conn.Close()
	}()

	h.sendBalance(c, userID)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", zap.String("user_id", userID), zap.Error(err))
			}
			break
		}

		if msg.Type == MessagePing {
			h.hub.send(&Message{
				Type:   MessagePong,
				UserID: userID,
				Data: gin.H{
					"timestamp": time.Now().Unix(),
				},
			})
		}
	}
}

func (h *WebSocketHandler) sendBalance(c *gin.Context, userID string) {
	o, err := h.sessions.Get(c.Request.Context(), userID)
	if err != nil {
		h.logger.Warn("failed to get wallet for websocket", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if wallet := o.Snapshot().Wallet; wallet != nil {
		h.hub.BroadcastBalance(userID, wallet)
	}
}
