package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType определяет типы событий
type MessageType string

const (
	// Системные типы
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"

	// Входящие события
	TypeSendMessage     MessageType = "sendMessage"
	TypeSendReply       MessageType = "sendReply"
	TypeTyping          MessageType = "typing"
	TypeMarkAsRead      MessageType = "markAsRead"
	TypeMessageReaction MessageType = "messageReaction"

	// Исходящие события
	TypeReceiveMessage    MessageType = "receiveMessage"
	TypeReceiveReply      MessageType = "receiveReply"
	TypeMessageSent       MessageType = "messageSent"
	TypeMessageError      MessageType = "messageError"
	TypeReplySent         MessageType = "replySent"
	TypeReplyError        MessageType = "replyError"
	TypeAdminTyping       MessageType = "adminTyping"
	TypeUserTyping        MessageType = "userTyping"
	TypeMessagesRead      MessageType = "messagesRead"
	TypeAdminConnected    MessageType = "adminConnected"
	TypeAdminDisconnected MessageType = "adminDisconnected"
)

// AdminRoom общая комната всех подключённых администраторов
const AdminRoom = "admin_room"

// UserRoom личная комната актора
func UserRoom(id uuid.UUID) string {
	return "user_" + id.String()
}

type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Encode сериализует событие в конверт {type, data, timestamp}
func Encode(msgType MessageType, data interface{}) ([]byte, error) {
	msg := Message{
		Type:      msgType,
		Timestamp: time.Now(),
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = jsonData
	}

	return json.Marshal(msg)
}

// Delivery единица fan-out: payload уходит всем клиентам перечисленных
// комнат, кроме соединений актора Exclude.
type Delivery struct {
	Rooms   []string  `json:"rooms"`
	Exclude uuid.UUID `json:"exclude"`
	Payload []byte    `json:"payload"`
}
