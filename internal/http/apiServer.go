package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"parley/internal/ai"
	"parley/internal/api"
	"parley/internal/directory"
	"parley/internal/identity"
	"parley/internal/storage"
	"parley/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(verifier identity.Verifier, hub *ws.Hub, store *storage.BboltStore, dir *directory.Directory, gateway *ai.Gateway, addr string) *APIServer {
	wsServer := ws.NewServer(verifier, hub)
	apiHandlers := api.New(verifier, store, dir, gateway)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/users", apiHandlers.RequireAuth(apiHandlers.UsersHandler))
	mux.HandleFunc("GET /api/messages/{user}/{recipient}", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))
	mux.HandleFunc("DELETE /api/clear-messages", apiHandlers.RequireAuth(apiHandlers.ClearMessagesHandler))
	mux.HandleFunc("POST /api/ai/generate", apiHandlers.RequireAuth(apiHandlers.GenerateHandler))
	mux.HandleFunc("POST /api/push/subscribe", apiHandlers.RequireAuth(apiHandlers.SubscribeHandler))

	// WebSocket endpoint
	mux.HandleFunc("/ws", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
