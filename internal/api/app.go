package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/codearena/realtime/internal/config"
	"github.com/codearena/realtime/internal/database"
	"github.com/codearena/realtime/internal/server"
)

type RealtimeApp struct {
	log            *log.Logger
	db             database.Repository
	mux            *http.Server
	rs             *server.RealtimeServer
	verifier       *CredentialVerifier
	allowedOrigins []string
}

func NewRealtimeApp(mux *http.ServeMux, logger *log.Logger, rs *server.RealtimeServer, db database.Repository, verifier *CredentialVerifier, cfg *config.Config) *RealtimeApp {
	s := &RealtimeApp{
		log:            logger,
		db:             db,
		rs:             rs,
		verifier:       verifier,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/teams", s.authMiddleware(s.getTeams))
	mux.Handle("GET /api/friends", s.authMiddleware(s.getFriends))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	// no auth middleware on /ws: sessions authenticate in-band
	mux.HandleFunc("GET /ws", s.serveWs)

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

func (s *RealtimeApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *RealtimeApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
