package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aimd54/community-scoring-engine/internal/config"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

func newTestServer(t *testing.T, status int) (*httptest.Server, *[]Message) {
	t.Helper()

	var received []Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
		}
		received = append(received, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, &received
}

func TestNotifyTransition(t *testing.T) {
	srv, received := newTestServer(t, http.StatusOK)
	c := NewClient(&config.NotificationsConfig{WebhookURL: srv.URL, Channel: "drinks", Enabled: true}, logger.Nop())

	err := c.NotifyTransition(context.Background(), models.Transition{
		ItemID: "negroni-abc", Kind: models.KindDrink, From: models.StatePending, To: models.StateFeatured, Score: 25,
	})
	if err != nil {
		t.Fatalf("NotifyTransition failed: %v", err)
	}

	if len(*received) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(*received))
	}
	msg := (*received)[0]
	if msg.Channel != "drinks" {
		t.Errorf("Expected default channel, got %q", msg.Channel)
	}
	if msg.Username != botName {
		t.Errorf("Expected username %q, got %q", botName, msg.Username)
	}
	if len(msg.Attachments) != 1 || !strings.Contains(msg.Attachments[0].Text, "is now featured with a score of 25") {
		t.Errorf("Unexpected attachments: %+v", msg.Attachments)
	}
}

func TestSendMessage_Disabled(t *testing.T) {
	srv, received := newTestServer(t, http.StatusOK)
	c := NewClient(&config.NotificationsConfig{WebhookURL: srv.URL, Enabled: false}, logger.Nop())

	if err := c.SendMessage(context.Background(), &Message{Text: "hi"}); err != nil {
		t.Fatalf("Disabled client should not fail: %v", err)
	}
	if len(*received) != 0 {
		t.Errorf("Disabled client should not send, got %d messages", len(*received))
	}
}

func TestSendMessage_ErrorStatus(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError)
	c := NewClient(&config.NotificationsConfig{WebhookURL: srv.URL, Enabled: true}, logger.Nop())

	err := c.SendMessage(context.Background(), &Message{Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestSendMaintenanceAlert(t *testing.T) {
	srv, received := newTestServer(t, http.StatusOK)
	c := NewClient(&config.NotificationsConfig{WebhookURL: srv.URL, Enabled: true}, logger.Nop())
	ctx := context.Background()

	if err := c.SendMaintenanceAlert(ctx, MaintenanceAlert{Job: "daily", Total: 3}); err != nil {
		t.Fatalf("Alert without failures failed: %v", err)
	}
	if len(*received) != 0 {
		t.Fatalf("Alert without failures should not be sent")
	}

	err := c.SendMaintenanceAlert(ctx, MaintenanceAlert{
		Job:     "daily",
		BatchID: "b-1",
		Total:   3,
		Failed:  []FailedTask{{Task: "archive_daily", Error: "storage unavailable"}},
	})
	if err != nil {
		t.Fatalf("SendMaintenanceAlert failed: %v", err)
	}
	if len(*received) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(*received))
	}
	text := (*received)[0].Text
	for _, want := range []string{"`daily` had 1 of 3", "**archive_daily**: storage unavailable", "Batch b-1"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in %q", want, text)
		}
	}
}

func TestStateLabel(t *testing.T) {
	for _, state := range []models.State{
		models.StatePending, models.StateFeatured, models.StateApproved, models.StateRetired, models.StateRejected,
	} {
		label, color := StateLabel(state)
		if label == "" || color == "" || strings.Contains(label, "unknown") {
			t.Errorf("StateLabel(%s) = (%q, %q)", state, label, color)
		}
	}

	if label, _ := StateLabel("archived"); label != "in unknown state archived" {
		t.Errorf("Unexpected label for unknown state: %q", label)
	}
}
