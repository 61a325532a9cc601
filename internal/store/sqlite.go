// Package store provides storage backends for VoicePipe.
//
// This file implements the SQLite-backed store for single-node deployments.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/AKillionVoice/voicepipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists everything in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is the path to the
// database file; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("SQLiteStore: failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore: store ready", "dsn", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveAgent(a models.AgentConfig) error {
	config, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal agent %s: %w", a.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO agents (id, config, priority, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET config = excluded.config, priority = excluded.priority, updated_at = CURRENT_TIMESTAMP`,
		a.ID, string(config), a.Priority)
	if err != nil {
		slog.Error("SQLiteStore.SaveAgent failed", "error", err, "agentID", a.ID)
		return fmt.Errorf("failed to save agent %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAgent(id string) (*models.AgentConfig, error) {
	var config string
	err := s.db.QueryRow(`SELECT config FROM agents WHERE id = ?`, id).Scan(&config)
	if err == sql.ErrNoRows {
		return nil, models.ErrAgentNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore.GetAgent failed", "error", err, "agentID", id)
		return nil, fmt.Errorf("failed to query agent %s: %w", id, err)
	}
	var a models.AgentConfig
	if err := json.Unmarshal([]byte(config), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent %s: %w", id, err)
	}
	return &a, nil
}

func (s *SQLiteStore) ListAgents() ([]models.AgentConfig, error) {
	rows, err := s.db.Query(`SELECT config FROM agents ORDER BY priority DESC, id`)
	if err != nil {
		slog.Error("SQLiteStore.ListAgents query failed", "error", err)
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []models.AgentConfig
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		var a models.AgentConfig
		if err := json.Unmarshal([]byte(config), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *SQLiteStore) DeleteAgent(id string) error {
	res, err := s.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore.DeleteAgent failed", "error", err, "agentID", id)
		return fmt.Errorf("failed to delete agent %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrAgentNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveGoalDefinition(g models.GoalDefinition) error {
	definition, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal goal %s: %w", g.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO goal_definitions (id, definition, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET definition = excluded.definition, updated_at = CURRENT_TIMESTAMP`,
		g.ID, string(definition))
	if err != nil {
		slog.Error("SQLiteStore.SaveGoalDefinition failed", "error", err, "goalID", g.ID)
		return fmt.Errorf("failed to save goal %s: %w", g.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListGoalDefinitions() ([]models.GoalDefinition, error) {
	rows, err := s.db.Query(`SELECT definition FROM goal_definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal definitions: %w", err)
	}
	defer rows.Close()

	var defs []models.GoalDefinition
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan goal row: %w", err)
		}
		var g models.GoalDefinition
		if err := json.Unmarshal([]byte(definition), &g); err != nil {
			return nil, fmt.Errorf("failed to unmarshal goal: %w", err)
		}
		defs = append(defs, g)
	}
	return defs, rows.Err()
}

func (s *SQLiteStore) SaveCallRecord(session *models.CallSession) error {
	record, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal call record %s: %w", session.CallID, err)
	}
	_, err = s.db.Exec(`INSERT INTO call_records (call_id, caller_address, agent_id, status, created_at, record)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(call_id) DO UPDATE SET status = excluded.status, record = excluded.record`,
		session.CallID, session.CallerAddress, nilIfEmpty(session.AgentID), string(session.Status), session.CreatedAt, string(record))
	if err != nil {
		slog.Error("SQLiteStore.SaveCallRecord failed", "error", err, "callID", session.CallID)
		return fmt.Errorf("failed to save call record %s: %w", session.CallID, err)
	}
	return nil
}

func (s *SQLiteStore) GetCallRecord(callID string) (*models.CallSession, error) {
	var record string
	err := s.db.QueryRow(`SELECT record FROM call_records WHERE call_id = ?`, callID).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query call record %s: %w", callID, err)
	}
	var session models.CallSession
	if err := json.Unmarshal([]byte(record), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call record %s: %w", callID, err)
	}
	return &session, nil
}

func (s *SQLiteStore) ListCallRecords(limit int) ([]models.CallSession, error) {
	query := `SELECT record FROM call_records ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}
	defer rows.Close()

	var sessions []models.CallSession
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan call record row: %w", err)
		}
		var session models.CallSession
		if err := json.Unmarshal([]byte(record), &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal call record: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) AddKnowledgeDomain(d models.KnowledgeDomain) error {
	_, err := s.db.Exec(`INSERT INTO knowledge_domains (id, name, description, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description`,
		d.ID, d.Name, nilIfEmpty(d.Description), d.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore.AddKnowledgeDomain failed", "error", err, "domainID", d.ID)
		return fmt.Errorf("failed to save knowledge domain %s: %w", d.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListKnowledgeDomains() ([]models.KnowledgeDomain, error) {
	rows, err := s.db.Query(`SELECT id, name, COALESCE(description, ''), created_at FROM knowledge_domains ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge domains: %w", err)
	}
	defer rows.Close()

	var domains []models.KnowledgeDomain
	for rows.Next() {
		var d models.KnowledgeDomain
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge domain row: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func (s *SQLiteStore) AddKnowledgeDocument(doc models.KnowledgeDocument) error {
	embedding, err := json.Marshal(doc.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding for %s: %w", doc.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO knowledge_documents (id, domain_id, content, embedding, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding`,
		doc.ID, doc.DomainID, doc.Content, string(embedding), doc.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore.AddKnowledgeDocument failed", "error", err, "documentID", doc.ID)
		return fmt.Errorf("failed to save knowledge document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListKnowledgeDocuments(domainIDs []string) ([]models.KnowledgeDocument, error) {
	if len(domainIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(domainIDs)), ",")
	args := make([]interface{}, len(domainIDs))
	for i, id := range domainIDs {
		args[i] = id
	}
	rows, err := s.db.Query(
		`SELECT id, domain_id, content, embedding, created_at FROM knowledge_documents WHERE domain_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge documents: %w", err)
	}
	defer rows.Close()

	var docs []models.KnowledgeDocument
	for rows.Next() {
		var doc models.KnowledgeDocument
		var embedding string
		if err := rows.Scan(&doc.ID, &doc.DomainID, &doc.Content, &embedding, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge document row: %w", err)
		}
		if err := json.Unmarshal([]byte(embedding), &doc.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) LogSMS(l models.SMSLog) error {
	_, err := s.db.Exec(`INSERT INTO sms_logs (id, call_id, recipient, body, agent_id, status, sent_at, sms_sid, template)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CallID, l.To, l.Body, nilIfEmpty(l.AgentID), l.Status, l.SentAt, nilIfEmpty(l.SMSSid), nilIfEmpty(l.Template))
	if err != nil {
		slog.Error("SQLiteStore.LogSMS failed", "error", err, "callID", l.CallID)
		return fmt.Errorf("failed to log SMS for call %s: %w", l.CallID, err)
	}
	return nil
}

func (s *SQLiteStore) ListSMSLogs(callID string) ([]models.SMSLog, error) {
	query := `SELECT id, call_id, recipient, body, COALESCE(agent_id, ''), status, sent_at, COALESCE(sms_sid, ''), COALESCE(template, '') FROM sms_logs`
	args := []interface{}{}
	if callID != "" {
		query += ` WHERE call_id = ?`
		args = append(args, callID)
	}
	query += ` ORDER BY sent_at`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sms logs: %w", err)
	}
	defer rows.Close()

	var logs []models.SMSLog
	for rows.Next() {
		var l models.SMSLog
		if err := rows.Scan(&l.ID, &l.CallID, &l.To, &l.Body, &l.AgentID, &l.Status, &l.SentAt, &l.SMSSid, &l.Template); err != nil {
			return nil, fmt.Errorf("failed to scan sms log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
