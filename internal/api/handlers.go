package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"parley/internal/content"
	"parley/internal/identity"
	"parley/internal/models"
)

type Store interface {
	MessagesBetween(a, b string) ([]models.Message, error)
	DeleteAllMessages() error
	UpsertPushSubscription(sub models.PushSubscription) error
}

type Directory interface {
	Resolve(id string) models.Profile
	ListUsers(excluding string) ([]models.Profile, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type API struct {
	verifier  identity.Verifier
	store     Store
	directory Directory
	ai        Generator
}

func New(verifier identity.Verifier, store Store, directory Directory, ai Generator) *API {
	return &API{
		verifier:  verifier,
		store:     store,
		directory: directory,
		ai:        ai,
	}
}

func (a *API) getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

// AuthedHandler is a handler that additionally receives the verified user.
type AuthedHandler func(w http.ResponseWriter, r *http.Request, userID string)

// RequireAuth rejects unauthenticated requests before they reach any core
// operation.
func (a *API) RequireAuth(next AuthedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.verifier.Verify(a.getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

// UsersHandler lists every user except the requester, for the contact
// sidebar.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request, userID string) {
	users, err := a.directory.ListUsers(userID)
	if err != nil {
		http.Error(w, "Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// MessagesHandler returns the transcript between two users, ascending by
// timestamp, with sender and recipient profiles resolved.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request, _ string) {
	user := r.PathValue("user")
	recipient := r.PathValue("recipient")
	if content.ValidateID(user) != nil || content.ValidateID(recipient) != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	messages, err := a.store.MessagesBetween(user, recipient)
	if err != nil {
		http.Error(w, "Failed to fetch messages.", http.StatusInternalServerError)
		return
	}

	enriched := make([]models.EnrichedMessage, 0, len(messages))
	for _, m := range messages {
		enriched = append(enriched, models.EnrichedMessage{
			ID:        m.ID,
			Sender:    a.directory.Resolve(m.SenderID),
			Recipient: a.directory.Resolve(m.RecipientID),
			Content:   m.Content,
			RoomKey:   m.RoomKey,
			Timestamp: m.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, enriched)
}

// ClearMessagesHandler deletes every persisted message.
func (a *API) ClearMessagesHandler(w http.ResponseWriter, r *http.Request, _ string) {
	if err := a.store.DeleteAllMessages(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "All messages deleted successfully"})
}

// GenerateHandler fronts the AI gateway.
func (a *API) GenerateHandler(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		Prompt  string `json:"prompt"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = req.Message
	}
	if prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing message in request"})
		return
	}

	reply, err := a.ai.Generate(r.Context(), prompt)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to get AI response",
			"details": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

// SubscribeHandler registers a Web Push subscription for the requester.
func (a *API) SubscribeHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			Auth   string `json:"auth"`
			P256dh string `json:"p256dh"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := a.store.UpsertPushSubscription(models.PushSubscription{
		UserID:   userID,
		Endpoint: req.Endpoint,
		Auth:     req.Keys.Auth,
		P256dh:   req.Keys.P256dh,
	})
	if err != nil {
		http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		log.Printf("failed to encode response: %v", err)
	}
}
