// Package chatclient — клиент чата на Go: websocket-канал событий
// и HTTP-запрос истории.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/go-portfolio/chat-relay/internal/chat"
)

var (
	// ErrConnect — не удалось установить соединение с сервером
	ErrConnect = errors.New("chatclient: connect failed")
	// ErrJoinRejected — сервер отклонил вход (пустое или длинное имя, повторный вход)
	ErrJoinRejected = errors.New("chatclient: join rejected")
)

const writeWait = 10 * time.Second

// Event — входящее событие сервера. Заполнено ровно одно поле полезной нагрузки.
type Event struct {
	Name     string
	Message  *chat.Message
	Presence *chat.PresenceChange
	Snapshot *chat.PresenceSnapshot
	Error    *chat.ErrorPayload
}

type Client struct {
	conn    *websocket.Conn
	baseURL *url.URL
	http    *http.Client

	writeMu sync.Mutex
	events  chan Event
	done    chan struct{}

	// сообщения с id не больше этого уже отданы историей
	seenID atomic.Int64

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// Dial подключается к серверу. serverURL — адрес HTTP, например http://localhost:3000.
func Dial(ctx context.Context, serverURL string) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: bad server url %q", ErrConnect, serverURL)
	}

	wsURL := *base
	switch base.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	case "http", "":
		wsURL.Scheme = "ws"
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrConnect, base.Scheme)
	}
	wsURL.Path = base.Path + "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	c := &Client{
		conn:    conn,
		baseURL: base,
		http:    &http.Client{Timeout: 10 * time.Second},
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events — поток событий сервера. Канал закрывается, когда соединение разорвано;
// причину возвращает Err.
func (c *Client) Events() <-chan Event { return c.events }

// Err возвращает ошибку, на которой остановилось чтение
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) Join(displayName, avatarRef string) error {
	return c.emit(chat.EventJoin, chat.JoinPayload{DisplayName: displayName, AvatarRef: avatarRef})
}

func (c *Client) Send(body string) error {
	return c.emit(chat.EventSendMessage, chat.SendPayload{Body: body})
}

func (c *Client) emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(chat.Envelope{Event: event, Data: data})
}

// JoinWithHistory входит в чат и возвращает снимок присутствия и историю,
// согласованную с живым потоком Events: каждое сообщение приходит ровно один раз.
//
// Hub рассылает сообщения и обрабатывает вход по очереди, поэтому всё, что
// сохранено до входа, имеет id <= LastMessageID снимка, а всё после — больше.
// События до снимка отбрасываются, история обрезается по курсору.
func (c *Client) JoinWithHistory(ctx context.Context, displayName, avatarRef string) (*chat.PresenceSnapshot, []chat.Message, error) {
	if err := c.Join(displayName, avatarRef); err != nil {
		return nil, nil, err
	}

	var snap *chat.PresenceSnapshot
	for snap == nil {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case ev, ok := <-c.events:
			if !ok {
				if err := c.Err(); err != nil {
					return nil, nil, fmt.Errorf("connection closed before join: %w", err)
				}
				return nil, nil, errors.New("chatclient: connection closed before join")
			}
			switch {
			case ev.Snapshot != nil:
				snap = ev.Snapshot
			case ev.Error != nil:
				return nil, nil, fmt.Errorf("%w: %s: %s", ErrJoinRejected, ev.Error.Code, ev.Error.Text)
			}
		}
	}
	c.seenID.Store(snap.LastMessageID)

	recent, err := c.History(ctx, 0)
	if err != nil {
		return snap, nil, err
	}
	history := recent[:0]
	for _, m := range recent {
		if m.ID <= snap.LastMessageID {
			history = append(history, m)
		}
	}
	return snap, history, nil
}

// History запрашивает историю: после after > 0 — сообщения с id > after,
// иначе последние сообщения сервера.
func (c *Client) History(ctx context.Context, after int64) ([]chat.Message, error) {
	u := *c.baseURL
	u.Path += "/api/messages"
	if after > 0 {
		u.RawQuery = url.Values{"after": {strconv.FormatInt(after, 10)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history: unexpected status %d", resp.StatusCode)
	}

	var msgs []chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}

// Close закрывает соединение. Повторный вызов безопасен.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		var env chat.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
				// закрыли сами
				return
			default:
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
			}
			return
		}

		ev, ok := decodeEvent(env)
		if !ok {
			continue
		}
		if ev.Message != nil && ev.Message.ID <= c.seenID.Load() {
			// уже есть в истории
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func decodeEvent(env chat.Envelope) (Event, bool) {
	ev := Event{Name: env.Event}
	var target any
	switch env.Event {
	case chat.EventMessageReceived:
		ev.Message = &chat.Message{}
		target = ev.Message
	case chat.EventPresenceChanged:
		ev.Presence = &chat.PresenceChange{}
		target = ev.Presence
	case chat.EventPresenceSnapshot:
		ev.Snapshot = &chat.PresenceSnapshot{}
		target = ev.Snapshot
	case chat.EventError:
		ev.Error = &chat.ErrorPayload{}
		target = ev.Error
	default:
		return Event{}, false
	}

	if err := json.Unmarshal(env.Data, target); err != nil {
		return Event{}, false
	}
	return ev, true
}
