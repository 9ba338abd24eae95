package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/thereayou/esim-portal/internal/metrics"
	"github.com/thereayou/esim-portal/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Hub struct {
	clients map[uuid.UUID]*Client

	// Клиенты по UserID (один пользователь может иметь несколько соединений)
	userClients map[uuid.UUID]map[uuid.UUID]*Client

	// Клиенты в комнатах
	rooms map[string]map[uuid.UUID]*Client

	// mu берётся эксклюзивно на время fan-out, поэтому все подписчики
	// комнаты видят события в одном порядке
	mu sync.RWMutex

	relay      Relay
	publishMu  sync.Mutex
	deliveries <-chan Delivery

	// после Stop новые соединения не принимаются
	stopped bool

	eventRate  rate.Limit
	eventBurst int

	onDisconnect func(*Client)
	logger       *zap.Logger

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Hub)

// WithRelay включает межинстансовый fan-out через Relay
func WithRelay(r Relay) Option {
	return func(h *Hub) { h.relay = r }
}

// WithEventLimit ограничивает входящие события на одно соединение
func WithEventLimit(perSecond float64, burst int) Option {
	return func(h *Hub) {
		if perSecond > 0 {
			h.eventRate = rate.Limit(perSecond)
			h.eventBurst = burst
		}
	}
}

// WithDisconnectHook вызывается после ухода последнего соединения актора
func WithDisconnectHook(fn func(*Client)) Option {
	return func(h *Hub) { h.onDisconnect = fn }
}

// NewHub создает новый Hub
func NewHub(logger *zap.Logger, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[uuid.UUID]map[uuid.UUID]*Client),
		rooms:       make(map[string]map[uuid.UUID]*Client),
		eventRate:   rate.Inf,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe подписывает hub на relay. Вызывается до приёма соединений:
// публикации до подтверждения подписки не доходят до этого инстанса.
// При ошибке hub переходит на локальную доставку.
func (h *Hub) Subscribe() error {
	if h.relay == nil || h.deliveries != nil {
		return nil
	}

	ch, err := h.relay.Subscribe(h.ctx)
	if err != nil {
		h.publishMu.Lock()
		h.relay = nil
		h.publishMu.Unlock()
		return err
	}
	h.deliveries = ch
	return nil
}

// Run доставляет события, пришедшие через relay, до остановки hub
func (h *Hub) Run() {
	if err := h.Subscribe(); err != nil {
		h.logger.Error("Relay subscribe failed, falling back to local delivery", zap.Error(err))
	}

	deliveries := h.deliveries
	for {
		select {
		case <-h.ctx.Done():
			return

		case d, ok := <-deliveries:
			if !ok {
				deliveries = nil
				continue
			}
			h.deliverLocal(d)
		}
	}
}

// Stop останавливает hub и закрывает все соединения. Для каждого актора
// вызывается onDisconnect, как при обычном уходе последнего соединения.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	h.stopped = true

	actors := make([]*Client, 0, len(h.userClients))
	for _, conns := range h.userClients {
		for _, client := range conns {
			actors = append(actors, client)
			break
		}
	}

	for id, client := range h.clients {
		close(client.Send)
		if client.Conn != nil {
			client.Conn.Close()
		}
		delete(h.clients, id)
	}
	h.userClients = make(map[uuid.UUID]map[uuid.UUID]*Client)
	h.rooms = make(map[string]map[uuid.UUID]*Client)
	h.mu.Unlock()

	metrics.Connections.Set(0)

	if h.onDisconnect != nil {
		for _, client := range actors {
			h.onDisconnect(client)
		}
	}
}

// Register регистрирует клиента и добавляет его в комнаты: личную для всех,
// admin_room для администраторов. После Stop возвращает ErrHubStopped.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()

	if h.stopped {
		h.mu.Unlock()
		return ErrHubStopped
	}

	h.clients[client.ID] = client

	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.UserID][client.ID] = client
	firstConn := len(h.userClients[client.UserID]) == 1

	h.joinRoomUnsafe(client, UserRoom(client.UserID))
	if client.Role == models.RoleAdmin {
		h.joinRoomUnsafe(client, AdminRoom)
	}

	h.mu.Unlock()

	metrics.Connections.Inc()
	h.logger.Info("Client registered",
		zap.String("client_id", client.ID.String()),
		zap.String("user_id", client.UserID.String()),
		zap.String("role", string(client.Role)),
	)

	if client.Role == models.RoleAdmin && firstConn {
		h.notifyAdminPresence(client, TypeAdminConnected, "Admin connected")
	}
	return nil
}

// Unregister отменяет регистрацию клиента. Повторный вызов безопасен.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()

	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}

	for _, room := range client.GetRooms() {
		h.removeFromRoomUnsafe(client, room)
	}

	lastConn := false
	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, client.UserID)
			lastConn = true
		}
	}

	delete(h.clients, client.ID)
	close(client.Send)

	h.mu.Unlock()

	metrics.Connections.Dec()
	h.logger.Info("Client unregistered",
		zap.String("client_id", client.ID.String()),
		zap.String("user_id", client.UserID.String()),
	)

	if !lastConn {
		return
	}
	if client.Role == models.RoleAdmin {
		h.notifyAdminPresence(client, TypeAdminDisconnected, "Admin disconnected")
	}
	if h.onDisconnect != nil {
		h.onDisconnect(client)
	}
}

// Disconnect принудительно закрывает все соединения актора
func (h *Hub) Disconnect(userID uuid.UUID) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.userClients[userID]))
	for _, c := range h.userClients[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
		if c.Conn != nil {
			c.Conn.Close()
		}
	}
	return len(clients)
}

func (h *Hub) joinRoomUnsafe(client *Client, room string) {
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[uuid.UUID]*Client)
	}
	h.rooms[room][client.ID] = client

	client.mu.Lock()
	client.Rooms[room] = true
	client.mu.Unlock()
}

func (h *Hub) removeFromRoomUnsafe(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}

	client.mu.Lock()
	delete(client.Rooms, room)
	client.mu.Unlock()
}

// SendToRoom отправляет сообщение в комнату
func (h *Hub) SendToRoom(room string, message []byte) {
	h.Broadcast(Delivery{Rooms: []string{room}, Payload: message})
}

// SendToRooms отправляет сообщение в несколько комнат; клиент, состоящий
// в нескольких из них, получает его один раз
func (h *Hub) SendToRooms(message []byte, rooms ...string) {
	h.Broadcast(Delivery{Rooms: rooms, Payload: message})
}

// Broadcast публикует доставку через relay, а без него доставляет локально
func (h *Hub) Broadcast(d Delivery) {
	h.publishMu.Lock()
	relay := h.relay
	var err error
	if relay != nil {
		err = relay.Publish(h.ctx, d)
	}
	h.publishMu.Unlock()

	if relay != nil {
		if err == nil {
			return
		}
		h.logger.Warn("Relay publish failed, delivering locally", zap.Error(err))
	}
	h.deliverLocal(d)
}

func (h *Hub) deliverLocal(d Delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[uuid.UUID]bool)
	for _, room := range d.Rooms {
		members, ok := h.rooms[room]
		if !ok {
			// в комнате никого нет: at-most-once, история доступна через API
			h.logger.Debug("No subscribers in room", zap.String("room", room))
			continue
		}
		for id, client := range members {
			if seen[id] || (d.Exclude != uuid.Nil && client.UserID == d.Exclude) {
				continue
			}
			seen[id] = true
			h.enqueueUnsafe(client, d.Payload)
		}
	}
}

// SendToClient отправляет сообщение одному соединению
func (h *Hub) SendToClient(client *Client, message []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return ErrClientGone
	}
	if !h.enqueueUnsafe(client, message) {
		return ErrClientQueueFull
	}
	return nil
}

func (h *Hub) enqueueUnsafe(client *Client, message []byte) bool {
	select {
	case client.Send <- message:
		metrics.Deliveries.WithLabelValues("queued").Inc()
		return true
	default:
		metrics.Deliveries.WithLabelValues("dropped").Inc()
		h.logger.Warn("Client send channel full", zap.String("client_id", client.ID.String()))
		return false
	}
}

func (h *Hub) notifyAdminPresence(client *Client, status MessageType, text string) {
	data, err := Encode(status, map[string]interface{}{
		"adminId": client.UserID,
		"message": text,
	})
	if err != nil {
		return
	}
	h.Broadcast(Delivery{Rooms: []string{AdminRoom}, Exclude: client.UserID, Payload: data})
}

// IsOnline проверяет, есть ли у актора открытое соединение
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID]) > 0
}

// GetOnlineUsers возвращает список онлайн пользователей
func (h *Hub) GetOnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}

// GetRoomUsers возвращает список пользователей в комнате
func (h *Hub) GetRoomUsers(room string) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userMap := make(map[uuid.UUID]bool)
	for _, client := range h.rooms[room] {
		userMap[client.UserID] = true
	}

	users := make([]uuid.UUID, 0, len(userMap))
	for userID := range userMap {
		users = append(users, userID)
	}
	return users
}
