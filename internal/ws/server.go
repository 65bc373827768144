package ws

import (
	"log"
	"net/http"

	"parley/internal/identity"

	"github.com/gorilla/websocket"
)

// Server upgrades authenticated HTTP requests to websocket connections and
// hands them to the hub.
type Server struct {
	verifier identity.Verifier
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(verifier identity.Verifier, hub *Hub) *Server {
	return &Server{
		verifier: verifier,
		hub:      hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	// Unauthenticated connections never reach the hub.
	userID, err := s.verifier.Verify(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// A client may also name its identity explicitly; it must match the
	// credential.
	if claimed := r.URL.Query().Get("userId"); claimed != "" && claimed != userID {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn := NewConnection(s.hub, ws, userID)
	if err := conn.Handle(r.Context()); err != nil {
		log.Printf("connection for user %s closed: %v", userID, err)
	}
}
