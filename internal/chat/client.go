package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second // таймаут записи одного кадра
	pongWait       = 60 * time.Second // сколько ждём PONG
	pingPeriod     = 45 * time.Second // период PING, меньше pongWait
	sendBufferSize = 64               // очередь исходящих событий клиента

	// Максимальный размер входящего кадра. Символ тела в JSON занимает до 12 байт
	// (суррогатная пара "\uXXXX\uXXXX"), сверху запас на имя и конверт.
	// Тело длиннее MaxBodyLen должно дойти до Hub и получить body-too-long.
	maxFrameSize = MaxBodyLen*12 + 8*1024
)

// Client представляет одно websocket-соединение
type Client struct {
	hub       *Hub
	conn      WebSocketConn
	id        string
	send      chan OutboundEvent
	closeCh   chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewClient создаёт клиента с новым идентификатором соединения
func NewClient(hub *Hub, conn WebSocketConn, log zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		hub:     hub,
		conn:    conn,
		id:      id,
		send:    make(chan OutboundEvent, sendBufferSize),
		closeCh: make(chan struct{}),
		log:     log.With().Str("conn", id).Logger(),
	}
}

func (c *Client) ID() string { return c.id }

// SendEvent неблокирующе кладёт событие в очередь записи
func (c *Client) SendEvent(ev OutboundEvent) bool {
	select {
	case <-c.closeCh:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// ReceivePrivateChan — очередь исходящих событий только для чтения
func (c *Client) ReceivePrivateChan() <-chan OutboundEvent { return c.send }

// Close закрывает соединение; повторные вызовы безопасны
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// ReadSocket читает кадры клиента и передаёт события в Hub.
// Любая ошибка чтения равносильна отключению.
func (c *Client) ReadSocket() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { // продлеваем таймаут при получении PONG
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}

		ev, ok := c.decode(data)
		if !ok {
			continue // битый кадр не рвёт соединение
		}
		if !c.hub.Dispatch(ev) {
			return
		}
	}
}

func (c *Client) decode(data []byte) (Event, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug().Err(err).Msg("malformed frame ignored")
		return Event{}, false
	}

	ev := Event{Client: c, Name: env.Event}
	var target any
	switch env.Event {
	case EventJoin:
		target = &ev.Join
	case EventSendMessage:
		target = &ev.Send
	default:
		c.log.Debug().Str("event", env.Event).Msg("unknown event ignored")
		return Event{}, false
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		c.log.Debug().Err(err).Str("event", env.Event).Msg("malformed payload ignored")
		return Event{}, false
	}
	return ev, true
}

// WriteSocket отправляет события клиенту и поддерживает heartbeat (PING)
func (c *Client) WriteSocket() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Debug().Err(err).Msg("write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeCh:
			return
		}
	}
}
