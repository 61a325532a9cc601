// Package testutil provides common testing utilities and helper functions
// used across VoicePipe test suites.
package testutil

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/AKillionVoice/voicepipe/internal/call"
	"github.com/AKillionVoice/voicepipe/internal/flow"
	"github.com/AKillionVoice/voicepipe/internal/goals"
	"github.com/AKillionVoice/voicepipe/internal/models"
	"github.com/AKillionVoice/voicepipe/internal/router"
	"github.com/AKillionVoice/voicepipe/internal/session"
	"github.com/AKillionVoice/voicepipe/internal/store"
	"github.com/AKillionVoice/voicepipe/internal/synth"
)

// ScriptedGenerator returns a fixed reply, standing in for the language
// model collaborator.
type ScriptedGenerator struct {
	Reply string
}

// Generate implements flow.Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, directive models.Directive, history []models.Message) (string, error) {
	if g.Reply != "" {
		return g.Reply, nil
	}
	return "Of course, happy to help with that.", nil
}

// SilentProvider renders a short block of silence, standing in for a real
// synthesis provider.
type SilentProvider struct{}

// Name implements synth.Provider.
func (SilentProvider) Name() string { return "silent" }

// Synthesize implements synth.Provider.
func (SilentProvider) Synthesize(ctx context.Context, req synth.Request) (*synth.Audio, error) {
	return &synth.Audio{Data: make([]byte, 1600), SampleRate: 8000, Channels: 1}, nil
}

// SeedAgents returns the standard two-agent test fixture: a keyword-routed
// billing agent and the fallback general agent.
func SeedAgents() []models.AgentConfig {
	return []models.AgentConfig{
		{
			ID: "billing", Name: "Billing", SystemPrompt: "You handle billing questions.", Priority: 2,
			Keywords: []models.Keyword{{Word: "billing", Weight: 1}, {Word: "invoice", Weight: 1}},
			GoalIDs:  []string{"schedule_appointment"},
		},
		{ID: "general", Name: "General", SystemPrompt: "You handle everything else.", Priority: 1, Fallback: true},
	}
}

// NewVoiceStack builds a fully wired coordinator over the in-memory store
// with scripted collaborators, seeded with SeedAgents and one goal.
func NewVoiceStack(t *testing.T) (*call.Coordinator, store.Store) {
	t.Helper()

	st := store.NewInMemoryStore()
	agents := SeedAgents()
	for _, a := range agents {
		if err := st.SaveAgent(a); err != nil {
			t.Fatalf("SaveAgent failed: %v", err)
		}
	}

	rt, err := router.New(agents)
	if err != nil {
		t.Fatalf("router.New failed: %v", err)
	}
	tracker, err := goals.NewTracker([]models.GoalDefinition{
		{ID: "schedule_appointment", Name: "Schedule Appointment", RequiredFields: []string{"date", "time", "service"}},
	})
	if err != nil {
		t.Fatalf("goals.NewTracker failed: %v", err)
	}
	engine := flow.NewEngine(&ScriptedGenerator{}, nil, tracker)
	orch, err := synth.NewOrchestrator([]synth.Provider{SilentProvider{}})
	if err != nil {
		t.Fatalf("synth.NewOrchestrator failed: %v", err)
	}

	coord := call.NewCoordinator(session.NewRegistry(), rt, engine, orch, st, nil)
	if err := coord.LoadAgents(); err != nil {
		t.Fatalf("LoadAgents failed: %v", err)
	}
	return coord, st
}

// NewFormRequest builds a form-encoded POST request the way the telephony
// gateway delivers webhooks.
func NewFormRequest(t *testing.T, path string, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// TwilioSignature computes the webhook signature the gateway would attach:
// HMAC-SHA1 over the URL concatenated with the sorted form parameters,
// base64 encoded.
func TwilioSignature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// AssertHTTPStatus fails the test when the status codes differ.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeJSONResponse decodes a recorded JSON API response and checks its
// top-level status field.
func DecodeJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode JSON response: %v (body: %s)", err, rr.Body.String())
	}
	if status, ok := response["status"].(string); !ok || status != expectedStatus {
		t.Errorf("expected response status %q, got %v", expectedStatus, response["status"])
	}
	return response
}

// MustMarshalJSON marshals v or fails the test.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}
