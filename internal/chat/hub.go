package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/go-portfolio/chat-relay/internal/metrics"
)

// Hub — координатор чата. Один цикл Run обрабатывает подключения,
// отключения и входящие события всех клиентов по очереди, поэтому:
//   - события одного соединения обрабатываются в порядке поступления;
//   - рассылка message-received идёт в порядке записи в журнал.
//
// Состояние соединения (Unjoined -> Joined -> Closed) хранится в clients;
// отсутствие клиента в карте означает Closed.
type Hub struct {
	Presence *Registry

	store        MessageStore
	log          zerolog.Logger
	storeTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	clients map[UserClient]ConnState // пишет только цикл Run

	registerCh chan UserClient
	inbound    chan Event // события всех соединений, включая отключение
	done       chan struct{}

	lastID int64     // курсор для presence-snapshot
	lastTS time.Time // время не должно идти назад
}

// внутреннее событие: соединение закрыто
const eventDisconnect = "disconnect"

// HubOption настраивает Hub при создании
type HubOption func(*Hub)

func WithLogger(log zerolog.Logger) HubOption {
	return func(h *Hub) { h.log = log }
}

func WithStoreTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.storeTimeout = d }
}

// WithClock подменяет источник времени (тесты)
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func NewHub(store MessageStore, opts ...HubOption) *Hub {
	h := &Hub{
		Presence:     NewRegistry(),
		store:        store,
		log:          zerolog.Nop(),
		storeTimeout: 5 * time.Second,
		now:          time.Now,
		clients:      make(map[UserClient]ConnState),
		registerCh:   make(chan UserClient),
		inbound:      make(chan Event, 256),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// =========================
// Вход в Hub из других горутин
// =========================

// RegisterClient добавляет новое соединение в состоянии Unjoined.
// false — Hub уже остановлен.
func (h *Hub) RegisterClient(c UserClient) bool {
	select {
	case h.registerCh <- c:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient переводит соединение в Closed (обрыв, закрытие, ошибка записи).
// Отключение идёт через ту же очередь, что и остальные события соединения,
// поэтому уже отправленные им сообщения будут обработаны раньше.
func (h *Hub) UnregisterClient(c UserClient) bool {
	return h.Dispatch(Event{Client: c, Name: eventDisconnect})
}

// Dispatch ставит входящее событие в очередь координатора.
func (h *Hub) Dispatch(ev Event) bool {
	select {
	case h.inbound <- ev:
		return true
	case <-h.done:
		return false
	}
}

// Done закрывается, когда Run завершился
func (h *Hub) Done() <-chan struct{} { return h.done }

// GetClients возвращает все открытые соединения (вошедшие и нет)
func (h *Hub) GetClients() []UserClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]UserClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// State возвращает состояние соединения; неизвестное соединение считается закрытым
func (h *Hub) State(c UserClient) ConnState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.clients[c]; ok {
		return st
	}
	return StateClosed
}

// =========================
// Главный цикл Hub
// =========================
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	h.loadCursor(ctx)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.registerCh:
			h.setState(c, StateUnjoined)
			metrics.ConnectionsActive.Inc()
			h.log.Debug().Str("conn", c.ID()).Msg("client connected")

		case ev := <-h.inbound:
			h.handleEvent(ctx, ev)
		}
	}
}

func (h *Hub) loadCursor(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()
	id, err := h.store.LastID(sctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("could not load last message id, starting cursor at 0")
		return
	}
	h.lastID = id

	// время новых сообщений не должно уйти раньше уже сохранённых,
	// даже если часы сдвинулись назад между перезапусками
	last, err := h.store.QueryRecent(sctx, 1)
	if err != nil {
		h.log.Warn().Err(err).Msg("could not load last message timestamp")
		return
	}
	if len(last) > 0 {
		h.lastTS = last[0].Timestamp.UTC()
	}
}

func (h *Hub) handleEvent(ctx context.Context, ev Event) {
	state, ok := h.clients[ev.Client]
	if !ok {
		// событие после закрытия — no-op
		return
	}

	switch ev.Name {
	case eventDisconnect:
		h.handleDisconnect(ev.Client)
	case EventJoin:
		h.handleJoin(ev.Client, state, ev.Join)
	case EventSendMessage:
		h.handleSend(ctx, ev.Client, state, ev.Send)
	default:
		h.log.Debug().Str("conn", ev.Client.ID()).Str("event", ev.Name).Msg("unknown event ignored")
	}
}

// Unjoined --join--> Joined
func (h *Hub) handleJoin(c UserClient, state ConnState, p JoinPayload) {
	if state != StateUnjoined {
		h.emit(c, errorEvent(CodeAlreadyJoined, "connection has already joined"))
		return
	}

	name, err := validateDisplayName(p.DisplayName)
	if err != nil {
		h.log.Debug().Str("conn", c.ID()).Str("code", err.Code).Msg("join rejected")
		h.emit(c, errorEvent(err.Code, err.Text))
		return
	}

	avatar := strings.TrimSpace(p.AvatarRef)
	if avatar == "" {
		avatar = FallbackAvatar(name)
	}

	h.Presence.Register(c.ID(), name, avatar)
	h.setState(c, StateJoined)
	metrics.PresenceJoined.Inc()

	snapshot := h.Presence.Snapshot()
	h.log.Info().Str("conn", c.ID()).Str("name", name).Int("online", len(snapshot)).Msg("user joined")

	// остальным — уведомление, вошедшему — снимок присутствия
	h.broadcast(OutboundEvent{
		Event: EventPresenceChanged,
		Data: PresenceChange{
			Kind:        PresenceJoined,
			DisplayName: name,
			Text:        fmt.Sprintf("%s joined the chat", name),
			Count:       len(snapshot),
		},
	}, c)
	h.emit(c, OutboundEvent{
		Event: EventPresenceSnapshot,
		Data: PresenceSnapshot{
			Count:         len(snapshot),
			Users:         snapshot,
			LastMessageID: h.lastID,
		},
	})
}

// Joined --send-message--> Joined
func (h *Hub) handleSend(ctx context.Context, c UserClient, state ConnState, p SendPayload) {
	if state != StateJoined {
		metrics.MessagesDropped.WithLabelValues("unjoined").Inc()
		return
	}
	entry, ok := h.Presence.Lookup(c.ID())
	if !ok {
		metrics.MessagesDropped.WithLabelValues("unjoined").Inc()
		return
	}

	body := strings.TrimSpace(p.Body)
	if body == "" {
		metrics.MessagesDropped.WithLabelValues("empty").Inc()
		return
	}
	if utf8.RuneCountInString(body) > MaxBodyLen {
		metrics.MessagesDropped.WithLabelValues("too-long").Inc()
		h.emit(c, errorEvent(CodeBodyTooLong, fmt.Sprintf("message is longer than %d characters", MaxBodyLen)))
		return
	}

	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	stored, err := h.store.Append(sctx, MessageFor(entry, body, h.nextTimestamp()))
	if err != nil {
		// не рассылаем и не повторяем; соединение живёт дальше
		metrics.MessagesDropped.WithLabelValues("store-error").Inc()
		h.log.Error().Err(err).Str("conn", c.ID()).Str("sender", entry.DisplayName).Msg("failed to persist message")
		h.emit(c, errorEvent(CodeSendFailed, "message could not be saved"))
		return
	}

	h.lastID = stored.ID
	if stored.Timestamp.After(h.lastTS) {
		h.lastTS = stored.Timestamp
	}
	metrics.MessagesPersisted.Inc()

	// всем, включая отправителя
	h.broadcast(messageEvent(stored), nil)
}

// Joined|Unjoined --disconnect--> Closed
func (h *Hub) handleDisconnect(c UserClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	metrics.ConnectionsActive.Dec()
	_ = c.Close()

	entry, ok := h.Presence.Remove(c.ID())
	if !ok {
		h.log.Debug().Str("conn", c.ID()).Msg("client disconnected before joining")
		return
	}
	metrics.PresenceJoined.Dec()

	count := h.Presence.Len()
	h.log.Info().Str("conn", c.ID()).Str("name", entry.DisplayName).Int("online", count).Msg("user left")

	h.broadcast(OutboundEvent{
		Event: EventPresenceChanged,
		Data: PresenceChange{
			Kind:        PresenceLeft,
			DisplayName: entry.DisplayName,
			Text:        fmt.Sprintf("%s left the chat", entry.DisplayName),
			Count:       count,
		},
	}, nil)
}

// shutdown закрывает все соединения и очищает реестр
func (h *Hub) shutdown() {
	h.mu.Lock()
	for c := range h.clients {
		_ = c.Close()
		metrics.ConnectionsActive.Dec()
	}
	h.clients = make(map[UserClient]ConnState)
	h.mu.Unlock()

	metrics.PresenceJoined.Sub(float64(h.Presence.Len()))
	h.Presence.Reset()
	h.log.Info().Msg("hub stopped")
}

func (h *Hub) setState(c UserClient, st ConnState) {
	h.mu.Lock()
	h.clients[c] = st
	h.mu.Unlock()
}

// emit отправляет событие одному клиенту; переполненная очередь — событие теряется
func (h *Hub) emit(c UserClient, ev OutboundEvent) {
	if !c.SendEvent(ev) {
		metrics.MessagesDropped.WithLabelValues("slow-client").Inc()
		h.log.Warn().Str("conn", c.ID()).Str("event", ev.Event).Msg("client queue full, event dropped")
	}
}

// broadcast рассылает событие всем открытым соединениям, кроме except
func (h *Hub) broadcast(ev OutboundEvent, except UserClient) {
	for c := range h.clients {
		if c == except {
			continue
		}
		h.emit(c, ev)
	}
}

func (h *Hub) nextTimestamp() time.Time {
	ts := h.now().UTC().Truncate(time.Microsecond)
	if ts.Before(h.lastTS) {
		ts = h.lastTS
	}
	h.lastTS = ts
	return ts
}

// MessageFor собирает сообщение от имени вошедшего участника
func MessageFor(entry PresenceEntry, body string, ts time.Time) Message {
	return Message{
		Sender:    entry.DisplayName,
		Body:      body,
		AvatarRef: entry.AvatarRef,
		Timestamp: ts,
	}
}

func validateDisplayName(raw string) (string, *ValidationError) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", &ValidationError{Code: CodeInvalidName, Text: "display name must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return "", &ValidationError{Code: CodeNameTooLong, Text: fmt.Sprintf("display name is longer than %d characters", MaxDisplayNameLen)}
	}
	return name, nil
}
