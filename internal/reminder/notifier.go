package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// LogNotifier writes reminders to the log. It is used when no webhook is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, r models.Reminder) error {
	logutil.NoopIfNil(n.Logger).Info("Reminder due", "reminderID", r.ID, "userID", r.UserID, "channelID", r.ChannelID, "eventID", r.EventID, "message", r.Message)
	return nil
}

// WebhookNotifier posts reminders to a chat webhook (Discord-compatible body).
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier posting to url. A nil client gets a 10s timeout.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

type webhookMessage struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Users []string `json:"users"`
}

// Content renders the text delivered for r.
func Content(r models.Reminder) string {
	msg := r.Message
	if msg == "" {
		msg = "You have an upcoming event."
	}
	if r.UserID != "" {
		return fmt.Sprintf("<@%s> ⏰ %s", r.UserID, msg)
	}
	return "⏰ " + msg
}

func (n *WebhookNotifier) Notify(ctx context.Context, r models.Reminder) error {
	body := webhookMessage{Content: Content(r)}
	if r.UserID != "" {
		body.AllowedMentions.Users = []string{r.UserID}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
