package models

import "time"

// KnowledgeDomain groups documents an agent may draw on.
type KnowledgeDomain struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// KnowledgeDocument is one stored document chunk with its embedding.
type KnowledgeDocument struct {
	ID        string    `json:"id"`
	DomainID  string    `json:"domain_id"`
	Content   string    `json:"content"`
	Embedding []float64 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeSnippet is one retrieved passage ready for prompt injection.
type KnowledgeSnippet struct {
	DocumentID string  `json:"document_id"`
	DomainID   string  `json:"domain_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"` // cosine similarity against the query
	TokenCost  int     `json:"token_cost"` // estimated tokens this snippet consumes
}
