package plugin

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/version"
)

// Delivery headers.
const (
	HeaderEvent     = "X-Agentdesk-Event"
	HeaderDelivery  = "X-Agentdesk-Delivery"
	HeaderSignature = "X-Agentdesk-Signature"
)

// Delivery is the JSON body posted for each event.
type Delivery struct {
	ID     string         `json:"id"`
	Event  string         `json:"event"`
	Data   map[string]any `json:"data,omitempty"`
	SentAt time.Time      `json:"sentAt"`
}

// Webhook posts lifecycle events to an HTTP endpoint.
type Webhook struct {
	id     string
	cfg    config.WebhookConfig
	hm     *hooks.Manager
	client *http.Client
	events []string
}

// NewWebhook creates a webhook plugin for cfg.
func NewWebhook(id string, cfg config.WebhookConfig) *Webhook {
	return &Webhook{id: id, cfg: cfg}
}

func (w *Webhook) ID() string { return w.id }

func (w *Webhook) Init(_ context.Context, api API) error {
	if w.cfg.URL == "" {
		return fmt.Errorf("webhook url is required")
	}
	w.hm = api.Hooks
	w.client = api.HTTP
	w.events = w.cfg.Events
	if len(w.events) == 0 {
		w.events = hooks.AllEvents
	}
	for _, ev := range w.events {
		api.Hooks.On(ev, w.id, w.deliver)
	}
	api.Log.Info().Str("url", w.cfg.URL).Strs("events", w.events).Msg("webhook registered")
	return nil
}

func (w *Webhook) deliver(ctx context.Context, p hooks.Payload) error {
	d := Delivery{
		ID:     uuid.NewString(),
		Event:  p.Event,
		Data:   p.Data,
		SentAt: time.Now().UTC(),
	}
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding delivery: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set(HeaderEvent, p.Event)
	req.Header.Set(HeaderDelivery, d.ID)
	if w.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(w.cfg.Secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering %s: %w", p.Event, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivering %s: status %d", p.Event, resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Close() error {
	for _, ev := range w.events {
		w.hm.Off(ev, w.id)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
