package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"parley/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// SubscriptionStore lists the push endpoints registered for a user.
type SubscriptionStore interface {
	ListPushSubscriptions(userID string) ([]models.PushSubscription, error)
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
}

// WebPush delivers best-effort notifications to users without a live
// connection. Disabled entirely when VAPID keys are not configured.
type WebPush struct {
	cfg   Config
	store SubscriptionStore
}

func NewWebPush(cfg Config, store SubscriptionStore) *WebPush {
	return &WebPush{cfg: cfg, store: store}
}

func (n *WebPush) Enabled() bool {
	return n.cfg.VAPIDPublicKey != "" && n.cfg.VAPIDPrivateKey != ""
}

// Notify pushes the message to every subscription registered for the user.
// Failures are logged and dropped; push delivery never fails the pipeline.
func (n *WebPush) Notify(ctx context.Context, userID string, msg *models.EnrichedMessage) {
	if !n.Enabled() {
		return
	}

	subs, err := n.store.ListPushSubscriptions(userID)
	if err != nil {
		slog.Error("failed to list push subscriptions", "user_id", userID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"title": "New message from " + msg.Sender.Username,
		"body":  msg.Content,
	})
	if err != nil {
		slog.Error("failed to marshal push payload", "error", err)
		return
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				Auth:   sub.Auth,
				P256dh: sub.P256dh,
			},
		}, &webpush.Options{
			Subscriber:      n.cfg.Subject,
			VAPIDPublicKey:  n.cfg.VAPIDPublicKey,
			VAPIDPrivateKey: n.cfg.VAPIDPrivateKey,
			TTL:             60,
		})
		if err != nil {
			slog.Warn("push delivery failed", "user_id", userID, "endpoint", sub.Endpoint, "error", err)
			continue
		}
		_ = resp.Body.Close()
	}
}
