package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AKillionVoice/voicepipe/internal/models"
	"github.com/AKillionVoice/voicepipe/internal/store"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	err   error
	calls int
}

func (f *fakeSender) SendSMS(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, body)
	return "SM123", nil
}

func endedSession() *models.CallSession {
	s := models.NewCallSession("CA1", "+15550100199", time.Now())
	s.Status = models.SessionStatusEnded
	s.Summary = "Caller booked a visit."
	s.Goals = map[string]*models.GoalProgress{
		"booking": {GoalID: "booking", Status: models.GoalStatusComplete, Collected: map[string]string{"date": "Friday"}},
	}
	return s
}

func smsAgent() *models.AgentConfig {
	return &models.AgentConfig{
		ID:          "booking",
		Name:        "Acme Booking",
		SMSTemplate: "Thanks for calling {{.AgentName}}! Your visit: {{index .Collected \"date\"}}.",
	}
}

func TestSendFollowUpRendersTemplate(t *testing.T) {
	sender := &fakeSender{}
	svc := NewFollowUpService(sender, store.NewInMemoryStore())

	if err := svc.SendFollowUp(context.Background(), endedSession(), smsAgent()); err != nil {
		t.Fatalf("SendFollowUp failed: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sent))
	}
	body := sender.sent[0]
	if !strings.Contains(body, "Acme Booking") || !strings.Contains(body, "Friday") {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestSendFollowUpExactlyOnce(t *testing.T) {
	sender := &fakeSender{}
	st := store.NewInMemoryStore()
	svc := NewFollowUpService(sender, st)
	session := endedSession()
	agent := smsAgent()

	if err := svc.SendFollowUp(context.Background(), session, agent); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if err := svc.SendFollowUp(context.Background(), session, agent); err != ErrAlreadySent {
		t.Errorf("expected ErrAlreadySent, got %v", err)
	}
	if sender.calls != 1 {
		t.Errorf("expected exactly one send, got %d", sender.calls)
	}

	// A fresh service instance still refuses: the store log is the durable
	// record.
	svc2 := NewFollowUpService(sender, st)
	if err := svc2.SendFollowUp(context.Background(), session, agent); err != ErrAlreadySent {
		t.Errorf("expected ErrAlreadySent across instances, got %v", err)
	}
}

func TestSendFollowUpFailureAllowsRetry(t *testing.T) {
	sender := &fakeSender{err: errors.New("carrier down")}
	svc := NewFollowUpService(sender, store.NewInMemoryStore())
	session := endedSession()
	agent := smsAgent()

	if err := svc.SendFollowUp(context.Background(), session, agent); err == nil {
		t.Fatal("expected send failure")
	}
	sender.err = nil
	if err := svc.SendFollowUp(context.Background(), session, agent); err != nil {
		t.Fatalf("retry after failure must succeed, got %v", err)
	}
}

func TestSendFollowUpNoTemplate(t *testing.T) {
	svc := NewFollowUpService(&fakeSender{}, store.NewInMemoryStore())
	agent := smsAgent()
	agent.SMSTemplate = ""
	if err := svc.SendFollowUp(context.Background(), endedSession(), agent); err != ErrNoTemplate {
		t.Errorf("expected ErrNoTemplate, got %v", err)
	}
}

func TestSendFollowUpLogsDelivery(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := NewFollowUpService(&fakeSender{}, st)
	if err := svc.SendFollowUp(context.Background(), endedSession(), smsAgent()); err != nil {
		t.Fatalf("SendFollowUp failed: %v", err)
	}
	logs, err := st.ListSMSLogs("CA1")
	if err != nil {
		t.Fatalf("ListSMSLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Status != StatusSent || logs[0].SMSSid != "SM123" {
		t.Errorf("unexpected log: %+v", logs)
	}
}
