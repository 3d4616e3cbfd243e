package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/ivanhoe/elixirconf-chat/internal/chat"
	"github.com/ivanhoe/elixirconf-chat/internal/config"
	"github.com/ivanhoe/elixirconf-chat/internal/directory"
	"github.com/ivanhoe/elixirconf-chat/internal/lobby"
)

type ChatApp struct {
	log            *log.Logger
	dir            directory.Directory
	cs             *chat.ChatServer
	bus            *lobby.Broadcaster
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *chat.ChatServer, dir directory.Directory, bus *lobby.Broadcaster, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		dir:            dir,
		cs:             cs,
		bus:            bus,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/rooms/state", s.authMiddleware(s.roomState))
	mux.Handle("GET /api/rooms/users", s.authMiddleware(s.roomUsers))
	mux.Handle("POST /api/rooms/clear", s.authMiddleware(s.moderatorOnly(s.clearRoom)))
	mux.Handle("POST /api/rooms/ban", s.authMiddleware(s.moderatorOnly(s.banUser)))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.Handle("GET /ws/lobby", s.authMiddleware(s.serveLobby))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
