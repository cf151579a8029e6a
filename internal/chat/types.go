package chat

import (
	"encoding/json"
	"time"

	"github.com/go-portfolio/chat-relay/internal/store"
)

// Имена событий канала
const (
	EventJoin        = "join"
	EventSendMessage = "send-message"

	EventMessageReceived  = "message-received"
	EventPresenceChanged  = "presence-changed"
	EventPresenceSnapshot = "presence-snapshot"
	EventError            = "error"
)

// Виды presence-changed
const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// Ограничения на входящие данные
const (
	MaxDisplayNameLen = 24   // в рунах
	MaxBodyLen        = 2000 // в рунах
)

// Envelope — один кадр websocket в любую сторону: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent — событие для отправки клиенту; Data сериализуется как есть.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinPayload — данные события join
type JoinPayload struct {
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// SendPayload — данные события send-message
type SendPayload struct {
	Body string `json:"body"`
}

// PresenceChange рассылается при входе и выходе участника
type PresenceChange struct {
	Kind        string `json:"kind"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	Count       int    `json:"count"`
}

// PresenceSnapshot получает только что вошедший клиент.
// LastMessageID — курсор: всё, что придёт вживую, имеет id больше него.
type PresenceSnapshot struct {
	Count         int             `json:"count"`
	Users         []PresenceEntry `json:"users"`
	LastMessageID int64           `json:"lastMessageId"`
}

// ErrorPayload возвращается в то соединение, чьё событие отклонено
type ErrorPayload struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// PresenceEntry — запись о вошедшем соединении.
type PresenceEntry struct {
	ConnectionID string    `json:"-"`
	DisplayName  string    `json:"displayName"`
	AvatarRef    string    `json:"avatarRef"`
	JoinedAt     time.Time `json:"-"`
	seq          uint64
}

// ConnState — состояние соединения в координаторе
type ConnState int

const (
	StateUnjoined ConnState = iota
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	default:
		return "closed"
	}
}

// Event — входящее событие конкретного соединения для координатора
type Event struct {
	Client UserClient
	Name   string
	Join   JoinPayload
	Send   SendPayload
}

// ValidationError — отклонённое входящее событие; соединение остаётся живым.
type ValidationError struct {
	Code string
	Text string
}

func (e *ValidationError) Error() string { return e.Code + ": " + e.Text }

// Коды ошибок, которые уходят клиенту
const (
	CodeInvalidName   = "invalid-name"
	CodeNameTooLong   = "name-too-long"
	CodeAlreadyJoined = "already-joined"
	CodeBodyTooLong   = "body-too-long"
	CodeSendFailed    = "send-failed"
)

// UserClient — то, что координатору нужно от соединения.
type UserClient interface {
	ID() string
	// SendEvent кладёт событие в очередь записи, не блокируясь.
	// false — очередь полна или клиент закрыт.
	SendEvent(ev OutboundEvent) bool
	Close() error
}

// WebSocketConn — минимальные методы websocket.Conn, которые нужны клиенту
type WebSocketConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// MessageStore — журнал сообщений, см. store.MessageStore
type MessageStore = store.MessageStore

// Message — сохранённое сообщение, как его получают клиенты
type Message = store.Message

func messageEvent(m store.Message) OutboundEvent {
	return OutboundEvent{Event: EventMessageReceived, Data: m}
}

func errorEvent(code, text string) OutboundEvent {
	return OutboundEvent{Event: EventError, Data: ErrorPayload{Code: code, Text: text}}
}
