package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// storeUnderTest runs the shared contract tests against a backend.
func storeUnderTest(t *testing.T, s Store) {
	t.Helper()

	agent := models.AgentConfig{
		ID:           "billing",
		Name:         "Billing",
		SystemPrompt: "You handle billing.",
		Priority:     2,
		Keywords:     []models.Keyword{{Word: "invoice", Weight: 1}},
		DomainIDs:    []string{"faq"},
	}
	if err := s.SaveAgent(agent); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}
	got, err := s.GetAgent("billing")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.Name != "Billing" || len(got.Keywords) != 1 || got.Keywords[0].Word != "invoice" {
		t.Errorf("agent round trip mismatch: %+v", got)
	}
	if _, err := s.GetAgent("missing"); err != models.ErrAgentNotFound {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}

	if err := s.SaveAgent(models.AgentConfig{ID: "general", Name: "General", SystemPrompt: "p", Priority: 1, Fallback: true}); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}
	agents, err := s.ListAgents()
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 2 || agents[0].ID != "billing" {
		t.Errorf("expected priority-ordered agents [billing general], got %+v", agents)
	}

	goal := models.GoalDefinition{ID: "booking", RequiredFields: []string{"date", "time"}}
	if err := s.SaveGoalDefinition(goal); err != nil {
		t.Fatalf("SaveGoalDefinition failed: %v", err)
	}
	defs, err := s.ListGoalDefinitions()
	if err != nil {
		t.Fatalf("ListGoalDefinitions failed: %v", err)
	}
	if len(defs) != 1 || len(defs[0].RequiredFields) != 2 {
		t.Errorf("goal round trip mismatch: %+v", defs)
	}

	session := models.NewCallSession("CA1", "+15550100", time.Now().UTC().Truncate(time.Second))
	session.AgentID = "billing"
	session.Status = models.SessionStatusEnded
	session.AppendMessage(models.Message{Role: models.RoleCaller, Text: "hi", Timestamp: time.Now().UTC()})
	if err := s.SaveCallRecord(session); err != nil {
		t.Fatalf("SaveCallRecord failed: %v", err)
	}
	record, err := s.GetCallRecord("CA1")
	if err != nil {
		t.Fatalf("GetCallRecord failed: %v", err)
	}
	if record.AgentID != "billing" || len(record.Messages) != 1 {
		t.Errorf("call record round trip mismatch: %+v", record)
	}
	if _, err := s.GetCallRecord("missing"); err != models.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	records, err := s.ListCallRecords(10)
	if err != nil {
		t.Fatalf("ListCallRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 call record, got %d", len(records))
	}

	if err := s.AddKnowledgeDomain(models.KnowledgeDomain{ID: "faq", Name: "FAQ", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("AddKnowledgeDomain failed: %v", err)
	}
	if err := s.AddKnowledgeDocument(models.KnowledgeDocument{
		ID: "d1", DomainID: "faq", Content: "Hours are 9 to 5.",
		Embedding: []float64{0.1, 0.2}, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("AddKnowledgeDocument failed: %v", err)
	}
	docs, err := s.ListKnowledgeDocuments([]string{"faq"})
	if err != nil {
		t.Fatalf("ListKnowledgeDocuments failed: %v", err)
	}
	if len(docs) != 1 || len(docs[0].Embedding) != 2 {
		t.Errorf("knowledge document round trip mismatch: %+v", docs)
	}
	none, err := s.ListKnowledgeDocuments([]string{"other"})
	if err != nil {
		t.Fatalf("ListKnowledgeDocuments failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no documents for unknown domain, got %d", len(none))
	}

	if err := s.LogSMS(models.SMSLog{
		ID: "sms1", CallID: "CA1", To: "+15550100", Body: "Thanks for calling",
		AgentID: "billing", Status: "sent", SentAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("LogSMS failed: %v", err)
	}
	logs, err := s.ListSMSLogs("CA1")
	if err != nil {
		t.Fatalf("ListSMSLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].To != "+15550100" {
		t.Errorf("sms log round trip mismatch: %+v", logs)
	}

	if err := s.DeleteAgent("billing"); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}
	if err := s.DeleteAgent("billing"); err != models.ErrAgentNotFound {
		t.Errorf("expected ErrAgentNotFound on second delete, got %v", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	storeUnderTest(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "voicepipe.db")
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	defer s.Close()
	storeUnderTest(t, s)
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error for missing DSN")
	}
}

func TestPostgresStoreRequiresDSN(t *testing.T) {
	if _, err := NewPostgresStore(); err == nil {
		t.Error("expected error for missing DSN")
	}
}
