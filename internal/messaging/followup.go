// Package messaging delivers post-call follow-up messages. After a call
// closes, the caller can receive one SMS rendered from the agent's template,
// carrying whatever the call collected.
package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/AKillionVoice/voicepipe/internal/models"
	"github.com/AKillionVoice/voicepipe/internal/sms"
	"github.com/AKillionVoice/voicepipe/internal/store"
)

// ErrAlreadySent is returned when a follow-up was already delivered for the
// call.
var ErrAlreadySent = errors.New("follow-up already sent for this call")

// ErrNoTemplate is returned when the agent has no follow-up template.
var ErrNoTemplate = errors.New("agent has no follow-up template")

// SMS delivery statuses recorded in the log.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// TemplateData is what an agent's SMS template can reference.
type TemplateData struct {
	CallerNumber string
	AgentName    string
	Summary      string
	Collected    map[string]string
}

// FollowUpService sends at most one follow-up SMS per call. Delivery is
// logged through the store; the in-process guard keeps retries from
// double-sending within a run, and the log answers across restarts.
type FollowUpService struct {
	sender sms.Sender
	store  store.Store
	mu     sync.Mutex
	sent   map[string]bool
	now    func() time.Time
}

// NewFollowUpService creates a FollowUpService.
func NewFollowUpService(sender sms.Sender, st store.Store) *FollowUpService {
	return &FollowUpService{
		sender: sender,
		store:  st,
		sent:   make(map[string]bool),
		now:    time.Now,
	}
}

// SendFollowUp renders the agent's template for the finished session and
// sends it to the caller. The second and later attempts for the same call id
// return ErrAlreadySent without sending anything.
func (f *FollowUpService) SendFollowUp(ctx context.Context, session *models.CallSession, agent *models.AgentConfig) error {
	if agent.SMSTemplate == "" {
		return ErrNoTemplate
	}

	f.mu.Lock()
	if f.sent[session.CallID] {
		f.mu.Unlock()
		return ErrAlreadySent
	}
	if logs, err := f.store.ListSMSLogs(session.CallID); err == nil {
		for _, l := range logs {
			if l.Status == StatusSent {
				f.sent[session.CallID] = true
				f.mu.Unlock()
				return ErrAlreadySent
			}
		}
	}
	// Marked before sending so a concurrent attempt cannot race past the
	// guard; a failed send clears it below.
	f.sent[session.CallID] = true
	f.mu.Unlock()

	body, err := renderTemplate(agent.SMSTemplate, templateData(session, agent))
	if err != nil {
		f.clear(session.CallID)
		slog.Error("FollowUpService.SendFollowUp: template render failed", "error", err, "callID", session.CallID, "agentID", agent.ID)
		return fmt.Errorf("failed to render follow-up template: %w", err)
	}

	sid, err := f.sender.SendSMS(ctx, session.CallerAddress, body)
	logEntry := models.SMSLog{
		ID:       uuid.NewString(),
		CallID:   session.CallID,
		To:       session.CallerAddress,
		Body:     body,
		AgentID:  agent.ID,
		SentAt:   f.now(),
		Template: agent.SMSTemplate,
	}
	if err != nil {
		f.clear(session.CallID)
		logEntry.Status = StatusFailed
		if logErr := f.store.LogSMS(logEntry); logErr != nil {
			slog.Error("FollowUpService.SendFollowUp: failed to log failed SMS", "error", logErr, "callID", session.CallID)
		}
		return fmt.Errorf("failed to send follow-up SMS: %w", err)
	}

	logEntry.Status = StatusSent
	logEntry.SMSSid = sid
	if err := f.store.LogSMS(logEntry); err != nil {
		slog.Error("FollowUpService.SendFollowUp: failed to log sent SMS", "error", err, "callID", session.CallID)
	}
	slog.Info("FollowUpService.SendFollowUp: follow-up sent", "callID", session.CallID, "to", session.CallerAddress, "sid", sid)
	return nil
}

func (f *FollowUpService) clear(callID string) {
	f.mu.Lock()
	delete(f.sent, callID)
	f.mu.Unlock()
}

// templateData collects everything the call gathered for the template.
func templateData(session *models.CallSession, agent *models.AgentConfig) TemplateData {
	collected := make(map[string]string)
	for _, p := range session.Goals {
		for field, value := range p.Collected {
			collected[field] = value
		}
	}
	return TemplateData{
		CallerNumber: session.CallerAddress,
		AgentName:    agent.Name,
		Summary:      session.Summary,
		Collected:    collected,
	}
}

func renderTemplate(tmpl string, data TemplateData) (string, error) {
	t, err := template.New("followup").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
