package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"parley/internal/content"
	"parley/internal/models"
	"parley/internal/room"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	SaveMessage(models.Message) (models.Message, error)
}

// Resolver turns user IDs into public profiles for the broadcast payload.
type Resolver interface {
	Resolve(id string) models.Profile
}

// Pipeline validates, persists, and enriches chat messages. It is the only
// component that creates Message records.
type Pipeline struct {
	store     Store
	directory Resolver
	now       func() time.Time
}

func NewPipeline(store Store, directory Resolver) *Pipeline {
	return &Pipeline{
		store:     store,
		directory: directory,
		now:       time.Now,
	}
}

type SubmitRequest struct {
	Sender    string
	Recipient string
	Content   string
	Timestamp int64 // client-supplied; server time is used when zero
}

// Submit runs one message through the pipeline. The room key is recomputed
// from the participants; a room key supplied by the remote party never
// reaches routing or persistence. Nothing is persisted on validation
// failure.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (*models.EnrichedMessage, error) {
	if err := content.ValidateID(req.Sender); err != nil {
		return nil, fmt.Errorf("%w: sender: %v", models.ErrInvalidID, err)
	}
	if err := content.ValidateID(req.Recipient); err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", models.ErrInvalidID, err)
	}

	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = p.now().UnixMilli()
	}

	saved, err := p.store.SaveMessage(models.Message{
		SenderID:    req.Sender,
		RecipientID: req.Recipient,
		RoomKey:     room.Key(req.Sender, req.Recipient),
		Content:     content.Sanitize(req.Content),
		Timestamp:   timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	html, err := content.RenderMarkdown(saved.Content)
	if err != nil {
		// Rendering is cosmetic; the sanitized plain content still ships.
		slog.Warn("failed to render message content", "message_id", saved.ID, "error", err)
		html = ""
	}

	return &models.EnrichedMessage{
		ID:          saved.ID,
		Sender:      p.directory.Resolve(saved.SenderID),
		Recipient:   p.directory.Resolve(saved.RecipientID),
		Content:     saved.Content,
		ContentHTML: html,
		RoomKey:     saved.RoomKey,
		Timestamp:   saved.Timestamp,
	}, nil
}
