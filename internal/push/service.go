// Package push delivers Web Push notifications to browser subscriptions.
package push

import (
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Config holds the VAPID key pair used to sign push messages.
type Config struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Payload is the notification shape the service worker expects.
type Payload struct {
	Title              string      `json:"title"`
	Body               string      `json:"body"`
	Icon               string      `json:"icon"`
	Badge              string      `json:"badge"`
	Tag                string      `json:"tag,omitempty"`
	RequireInteraction bool        `json:"requireInteraction"`
	Data               PayloadData `json:"data"`
}

// PayloadData is carried through to the click handler.
type PayloadData struct {
	RequestID int64  `json:"requestId,omitempty"`
	URL       string `json:"url"`
}

// NewPayload fills in the standard icon and badge assets.
func NewPayload(title, body string) Payload {
	return Payload{
		Title: title,
		Body:  body,
		Icon:  "/icon-192x192.png",
		Badge: "/badge-72x72.png",
	}
}

// Service sends push messages signed with the configured VAPID keys.
type Service struct {
	config Config
}

func NewService(config Config) *Service {
	return &Service{config: config}
}

// IsConfigured returns true if the VAPID key pair is present.
func (s *Service) IsConfigured() bool {
	return s.config.PublicKey != "" && s.config.PrivateKey != ""
}

// PublicKey exposes the VAPID public key for subscription handshakes.
func (s *Service) PublicKey() string {
	return s.config.PublicKey
}

// Send pushes the payload to one stored subscription. The subscription is the
// JSON blob captured from the browser's PushManager.
func (s *Service) Send(subscription string, payload Payload) error {
	if !s.IsConfigured() {
		return fmt.Errorf("push not configured")
	}

	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(subscription), &sub); err != nil {
		return fmt.Errorf("parse subscription: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	resp, err := webpush.SendNotification(body, &sub, &webpush.Options{
		Subscriber:      s.config.Subject,
		VAPIDPublicKey:  s.config.PublicKey,
		VAPIDPrivateKey: s.config.PrivateKey,
		TTL:             3600,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	// 404 and 410 mean the subscription is gone and should be dropped.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrSubscriptionGone
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// ErrSubscriptionGone reports that the push endpoint rejected the
// subscription as expired or unsubscribed.
var ErrSubscriptionGone = fmt.Errorf("push subscription gone")
