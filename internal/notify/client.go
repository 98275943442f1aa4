// Package notify posts lifecycle and maintenance announcements to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aimd54/community-scoring-engine/internal/config"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

const botName = "Scoring Engine"

// Client handles webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new webhook client.
func NewClient(cfg *config.NotificationsConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Message represents a webhook message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	ThumbURL string  `json:"thumb_url,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage posts a message to the webhook.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Notifications are disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}
	if msg.Username == "" {
		msg.Username = botName
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent webhook message")

	return nil
}

// StateLabel is the human label and attachment colour for an item state.
func StateLabel(state models.State) (label, color string) {
	switch state {
	case models.StatePending:
		return "back in review", "#9e9e9e"
	case models.StateFeatured:
		return "featured", "#2e7d32"
	case models.StateApproved:
		return "approved", "#1565c0"
	case models.StateRetired:
		return "retired", "#6d4c41"
	case models.StateRejected:
		return "rejected", "#c62828"
	default:
		return "in unknown state " + string(state), "#000000"
	}
}

// NotifyTransition announces that an item changed state.
func (c *Client) NotifyTransition(ctx context.Context, tr models.Transition) error {
	label, color := StateLabel(tr.To)
	text := fmt.Sprintf("The %s **%s** is now %s with a score of %d.", tr.Kind, tr.ItemID, label, tr.Score)

	return c.SendMessage(ctx, &Message{
		Attachments: []Attachment{{
			Fallback: text,
			Color:    color,
			Text:     text,
			Fields: []Field{
				{Short: true, Title: "From", Value: string(tr.From)},
				{Short: true, Title: "To", Value: string(tr.To)},
			},
		}},
	})
}

// FailedTask is one failed maintenance step for an alert.
type FailedTask struct {
	Task  string
	Error string
}

// MaintenanceAlert summarises a maintenance batch that did not fully succeed.
type MaintenanceAlert struct {
	Job     string
	BatchID string
	Total   int
	Failed  []FailedTask
}

// SendMaintenanceAlert posts a summary of failed maintenance tasks. An alert with no
// failures is not sent.
func (c *Client) SendMaintenanceAlert(ctx context.Context, alert MaintenanceAlert) error {
	if len(alert.Failed) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Maintenance job `%s` had %d of %d tasks fail\n\n", alert.Job, len(alert.Failed), alert.Total)
	for _, f := range alert.Failed {
		fmt.Fprintf(&b, "- **%s**: %s\n", f.Task, f.Error)
	}
	fmt.Fprintf(&b, "\n_Batch %s_", alert.BatchID)

	return c.SendMessage(ctx, &Message{Text: b.String()})
}
