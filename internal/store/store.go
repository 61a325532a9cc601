// Package store provides storage backends for VoicePipe.
//
// It persists agent configurations, goal definitions, archived call records,
// knowledge documents, and follow-up SMS logs. Three backends are available:
// in-memory for tests and ephemeral runs, SQLite for single-node deployments,
// and PostgreSQL for shared ones.
package store

import (
	"github.com/AKillionVoice/voicepipe/internal/models"
)

// Store is the persistence interface used across the service.
type Store interface {
	// Agent configurations.
	SaveAgent(a models.AgentConfig) error
	GetAgent(id string) (*models.AgentConfig, error)
	ListAgents() ([]models.AgentConfig, error)
	DeleteAgent(id string) error

	// Goal definitions.
	SaveGoalDefinition(g models.GoalDefinition) error
	ListGoalDefinitions() ([]models.GoalDefinition, error)

	// Archived call records. Live sessions stay in the registry; a record is
	// written once when the call closes.
	SaveCallRecord(s *models.CallSession) error
	GetCallRecord(callID string) (*models.CallSession, error)
	ListCallRecords(limit int) ([]models.CallSession, error)

	// Knowledge domains and documents.
	AddKnowledgeDomain(d models.KnowledgeDomain) error
	ListKnowledgeDomains() ([]models.KnowledgeDomain, error)
	AddKnowledgeDocument(doc models.KnowledgeDocument) error
	ListKnowledgeDocuments(domainIDs []string) ([]models.KnowledgeDocument, error)

	// Follow-up SMS logs.
	LogSMS(l models.SMSLog) error
	ListSMSLogs(callID string) ([]models.SMSLog, error)

	Close() error
}

// Opts holds configuration options for creating a store backend.
type Opts struct {
	// DSN is the backend connection string: a file path for SQLite, a
	// connection URL for Postgres.
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the backend connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}
