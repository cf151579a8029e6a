package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// =========================
// withJSON задаёт заголовки JSON
// =========================
func withJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	withJSON(w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// =========================
// Информация о сервисе
// GET /
// =========================
func (s *Server) IndexHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":     "chat-relay",
		"ws":       "/ws",
		"messages": "/api/messages",
		"health":   "/api/health",
	})
}

// =========================
// История сообщений
// GET /api/messages[?limit=N][&after=ID]
// Без after — последние limit сообщений; с after — первые limit сообщений с id > after.
// В обоих случаях порядок хронологический.
// =========================
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := s.historyLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.storeTimeout)
	defer cancel()

	var (
		msgs any
		err  error
	)
	if raw := q.Get("after"); raw != "" {
		after, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || after < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative message id")
			return
		}
		msgs, err = s.Store.QueryAfter(ctx, after, limit)
	} else {
		msgs, err = s.Store.QueryRecent(ctx, limit)
	}
	if err != nil {
		s.Log.Error().Err(err).Msg("failed to fetch messages")
		writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

// HealthResponse — ответ /api/health
type HealthResponse struct {
	Status    string            `json:"status"` // ok | degraded
	Timestamp time.Time         `json:"timestamp"`
	Online    int               `json:"online"`
	Checks    map[string]string `json:"checks"`
}

// =========================
// Проверка живости
// GET /api/health
// Всегда 200: деградация хранилища видна в status и checks.
// =========================
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Online:    s.Hub.Presence.Len(),
		Checks:    map[string]string{"store": "pass"},
	}
	if err := s.Store.Ping(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("store health check failed")
		resp.Status = "degraded"
		resp.Checks["store"] = "fail"
	}

	writeJSON(w, http.StatusOK, resp)
}

// =========================
// Кто в чате
// GET /api/presence
// =========================
func (s *Server) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	users := s.Hub.Presence.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(users),
		"users": users,
	})
}
