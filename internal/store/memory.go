package store

import (
	"sort"
	"sync"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// InMemoryStore keeps everything in process memory. Used by tests and by
// deployments that do not configure a database.
type InMemoryStore struct {
	mu        sync.RWMutex
	agents    map[string]models.AgentConfig
	goals     map[string]models.GoalDefinition
	records   map[string]models.CallSession
	domains   map[string]models.KnowledgeDomain
	documents []models.KnowledgeDocument
	smsLogs   []models.SMSLog
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		agents:  make(map[string]models.AgentConfig),
		goals:   make(map[string]models.GoalDefinition),
		records: make(map[string]models.CallSession),
		domains: make(map[string]models.KnowledgeDomain),
	}
}

func (s *InMemoryStore) SaveAgent(a models.AgentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

func (s *InMemoryStore) GetAgent(id string) (*models.AgentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, models.ErrAgentNotFound
	}
	return &a, nil
}

func (s *InMemoryStore) ListAgents() ([]models.AgentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AgentConfig, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	// Priority descending, then id, so routing declaration order is stable.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) DeleteAgent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return models.ErrAgentNotFound
	}
	delete(s.agents, id)
	return nil
}

func (s *InMemoryStore) SaveGoalDefinition(g models.GoalDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[g.ID] = g
	return nil
}

func (s *InMemoryStore) ListGoalDefinitions() ([]models.GoalDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.GoalDefinition, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) SaveCallRecord(session *models.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[session.CallID] = *session
	return nil
}

func (s *InMemoryStore) GetCallRecord(callID string) (*models.CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[callID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return &r, nil
}

func (s *InMemoryStore) ListCallRecords(limit int) ([]models.CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CallSession, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) AddKnowledgeDomain(d models.KnowledgeDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[d.ID] = d
	return nil
}

func (s *InMemoryStore) ListKnowledgeDomains() ([]models.KnowledgeDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.KnowledgeDomain, 0, len(s.domains))
	for _, d := range s.domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) AddKnowledgeDocument(doc models.KnowledgeDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = append(s.documents, doc)
	return nil
}

func (s *InMemoryStore) ListKnowledgeDocuments(domainIDs []string) ([]models.KnowledgeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(domainIDs))
	for _, id := range domainIDs {
		wanted[id] = true
	}
	var out []models.KnowledgeDocument
	for _, d := range s.documents {
		if wanted[d.DomainID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *InMemoryStore) LogSMS(l models.SMSLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smsLogs = append(s.smsLogs, l)
	return nil
}

func (s *InMemoryStore) ListSMSLogs(callID string) ([]models.SMSLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SMSLog
	for _, l := range s.smsLogs {
		if callID == "" || l.CallID == callID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
