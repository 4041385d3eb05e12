package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// WebhookSink posts a plain text message to a group chat bot.
type WebhookSink struct {
	url    string
	client *http.Client
}

// WebhookOption configures the WebhookSink.
type WebhookOption func(*WebhookSink)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) {
		s.client = c
	}
}

func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{url: url, client: http.DefaultClient}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *WebhookSink) Name() string { return "webhook" }

type webhookText struct {
	Content string `json:"content"`
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

func (s *WebhookSink) Deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(webhookPayload{MsgType: "text", Text: webhookText{Content: FormatText(ev)}})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// FormatText renders the chat message for an event.
func FormatText(ev Event) string {
	switch ev.Kind {
	case KindReplyCreated:
		return fmt.Sprintf("New reply on \"%s\"\nFrom: %s\n%s", ev.Title, ev.Author, ev.Preview)
	default:
		return fmt.Sprintf("New message: %s\nFrom: %s\n%s", ev.Title, ev.Author, ev.Preview)
	}
}
