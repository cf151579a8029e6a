package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-portfolio/chat-relay/internal/chat"
)

// =========================
// WebSocket обработчик
// GET /ws
// =========================
func (s *Server) ChatConnectionHandler(w http.ResponseWriter, r *http.Request) {
	// Обновляем HTTP-соединение до WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader уже ответил клиенту ошибкой
		s.Log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := chat.NewClient(s.Hub, conn, s.Log)
	if !s.Hub.RegisterClient(client) {
		// Hub остановлен — сервер завершается
		_ = conn.Close()
		return
	}

	// Запись в отдельной горутине, чтение — в горутине запроса
	go client.WriteSocket()
	client.ReadSocket()
}

// originChecker разрешает origin из списка; "*" разрешает всё.
// Запросы без Origin (не браузер) пропускаются.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}
