package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thereayou/esim-portal/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Время ожидания записи
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Интервал отправки ping
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер сообщения
	maxMessageSize = 512 * 1024 // 512KB

	sendBufferSize = 256
)

// Conn подмножество *websocket.Conn, которое нужно клиенту
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type ClientMessageHandler interface {
	HandleMessage(client *Client, msg *Message) error
}

// Client одно WebSocket соединение. UserID и Role фиксируются при
// подключении и не меняются до его закрытия.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Role   models.Role
	Name   string
	Conn   Conn
	Send   chan []byte
	Rooms  map[string]bool
	Hub    *Hub

	limiter *rate.Limiter
	mu      sync.RWMutex
}

func NewClient(hub *Hub, conn Conn, userID uuid.UUID, role models.Role, name string) *Client {
	return &Client{
		ID:      uuid.New(),
		UserID:  userID,
		Role:    role,
		Name:    name,
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		Rooms:   make(map[string]bool),
		Hub:     hub,
		limiter: rate.NewLimiter(hub.eventRate, hub.eventBurst),
	}
}

func (c *Client) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// ReadPump читает события клиента и обрабатывает их строго по одному
func (c *Client) ReadPump(handler ClientMessageHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket error", zap.Error(err), zap.String("client_id", c.ID.String()))
			}
			break
		}

		// кадр прочитан целиком: битый JSON не рвёт соединение
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendError(ErrInvalidMessage.Error())
			continue
		}

		switch msg.Type {
		case TypePong, TypePing:
			continue
		}

		if !c.limiter.Allow() {
			c.SendError(ErrRateLimited.Error())
			continue
		}

		if handler != nil {
			if err := handler.HandleMessage(c, &msg); err != nil {
				c.Hub.logger.Warn("Error handling message",
					zap.String("type", string(msg.Type)),
					zap.Error(err),
				)
				c.SendError(err.Error())
			}
		}
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Отправляем все накопившиеся сообщения
			n := len(c.Send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.Send
				if !ok {
					c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage отправляет событие только этому соединению
func (c *Client) SendMessage(msgType MessageType, data interface{}) error {
	msgData, err := Encode(msgType, data)
	if err != nil {
		return err
	}
	return c.Hub.SendToClient(c, msgData)
}

func (c *Client) SendError(errorMsg string) {
	c.SendMessage(TypeError, map[string]string{
		"error": errorMsg,
	})
}

func (c *Client) IsInRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Rooms[room]
}

func (c *Client) GetRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.Rooms))
	for room := range c.Rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
