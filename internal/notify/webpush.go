package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dealerops/taskboard/internal/config"
	"github.com/dealerops/taskboard/internal/pushsubscription"
)

// WebPushSink delivers payloads over the web push protocol to every
// subscription held by the targeted users. Expired endpoints are pruned as
// they are discovered.
type WebPushSink struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
}

func NewWebPushSink(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *WebPushSink {
	return &WebPushSink{
		vapidEnv: vapidEnv,
		repo:     repo,
	}
}

func (s *WebPushSink) Notify(ctx context.Context, userIDs []string, payload *Payload) error {
	if s.vapidEnv.VAPIDPrivateKey == "" || s.vapidEnv.VAPIDPublicKey == "" {
		slog.WarnContext(ctx, "push notification: VAPID keys not configured, skipping")
		return nil
	}
	if len(userIDs) == 0 {
		return nil
	}

	subs, err := s.repo.ListByUsers(ctx, userIDs)
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		s.sendToSubscription(ctx, sub, data)
	}
	return nil
}

func (s *WebPushSink) sendToSubscription(ctx context.Context, sub *pushsubscription.Subscription, data []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := webpush.SendNotification(data, wpSub, &webpush.Options{
		VAPIDPublicKey:  s.vapidEnv.VAPIDPublicKey,
		VAPIDPrivateKey: s.vapidEnv.VAPIDPrivateKey,
		Subscriber:      s.vapidEnv.VAPIDContact,
		TTL:             86400,
	})
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to send", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		slog.InfoContext(ctx, "push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.ErrorContext(ctx, "push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return
	}

	if resp.StatusCode >= 400 {
		slog.WarnContext(ctx, "push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	}
}
