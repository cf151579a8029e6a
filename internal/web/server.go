package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/go-portfolio/chat-relay/internal/chat"
	"github.com/go-portfolio/chat-relay/internal/store"
)

// Options — настройки HTTP-слоя
type Options struct {
	HistoryLimit   int
	StoreTimeout   time.Duration
	AllowedOrigins []string
}

// Server держит зависимости обработчиков (вместо глобальных переменных)
type Server struct {
	Hub   *chat.Hub
	Store store.MessageStore
	Log   zerolog.Logger

	historyLimit   int
	storeTimeout   time.Duration
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewServer(hub *chat.Hub, st store.MessageStore, log zerolog.Logger, opts Options) *Server {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		Hub:            hub,
		Store:          st,
		Log:            log,
		historyLimit:   opts.HistoryLimit,
		storeTimeout:   opts.StoreTimeout,
		allowedOrigins: opts.AllowedOrigins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return s
}

// =========================
// Маршруты
// =========================
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(s.Log))
	r.Use(Metrics)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.IndexHandler)
	r.Get("/api/messages", s.HistoryHandler)
	r.Get("/api/health", s.HealthHandler)
	r.Get("/api/presence", s.PresenceHandler)
	r.Get("/ws", s.ChatConnectionHandler)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
