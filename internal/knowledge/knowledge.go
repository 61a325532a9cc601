// Package knowledge retrieves reference passages for prompt grounding. A
// query is embedded, scored by cosine similarity against the documents in the
// agent's assigned domains, and the best passages are returned under a token
// budget. Retrieval never fails a call turn: any error degrades to an empty
// result.
package knowledge

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// DefaultRelevanceFloor is the minimum cosine similarity a passage needs to
// be returned.
const DefaultRelevanceFloor = 0.75

// DefaultTokenBudget caps the combined estimated token cost of returned
// passages.
const DefaultTokenBudget = 500

// Embedder produces embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// DocumentSource loads the candidate documents for a set of domains.
type DocumentSource interface {
	ListKnowledgeDocuments(domainIDs []string) ([]models.KnowledgeDocument, error)
}

// Opts holds configuration options for creating a Retriever.
type Opts struct {
	// RelevanceFloor overrides DefaultRelevanceFloor when > 0.
	RelevanceFloor float64
	// TokenBudget overrides DefaultTokenBudget when > 0.
	TokenBudget int
}

// Option configures a Retriever.
type Option func(*Opts)

// WithRelevanceFloor sets the minimum similarity for returned passages.
func WithRelevanceFloor(f float64) Option {
	return func(o *Opts) { o.RelevanceFloor = f }
}

// WithTokenBudget sets the combined token cap for returned passages.
func WithTokenBudget(n int) Option {
	return func(o *Opts) { o.TokenBudget = n }
}

// Retriever scores stored documents against caller queries.
type Retriever struct {
	embedder Embedder
	source   DocumentSource
	floor    float64
	budget   int
}

// New creates a Retriever over the given embedder and document source.
func New(embedder Embedder, source DocumentSource, opts ...Option) *Retriever {
	options := Opts{}
	for _, opt := range opts {
		opt(&options)
	}
	floor := DefaultRelevanceFloor
	if options.RelevanceFloor > 0 {
		floor = options.RelevanceFloor
	}
	budget := DefaultTokenBudget
	if options.TokenBudget > 0 {
		budget = options.TokenBudget
	}
	return &Retriever{embedder: embedder, source: source, floor: floor, budget: budget}
}

// Retrieve returns the passages from the given domains most relevant to
// query, highest similarity first, subject to the relevance floor and the
// token budget. Errors from the embedder or the document source are logged
// and produce an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, domainIDs []string) []models.KnowledgeSnippet {
	if query == "" || len(domainIDs) == 0 {
		return nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("Retriever.Retrieve: embedding failed, returning no passages", "error", err)
		return nil
	}

	docs, err := r.source.ListKnowledgeDocuments(domainIDs)
	if err != nil {
		slog.Warn("Retriever.Retrieve: document load failed, returning no passages", "error", err)
		return nil
	}

	var candidates []models.KnowledgeSnippet
	for _, doc := range docs {
		sim := CosineSimilarity(queryVec, doc.Embedding)
		if sim < r.floor {
			continue
		}
		candidates = append(candidates, models.KnowledgeSnippet{
			DocumentID: doc.ID,
			DomainID:   doc.DomainID,
			Content:    doc.Content,
			Similarity: sim,
			TokenCost:  EstimateTokens(doc.Content),
		})
	}

	// Highest similarity first; document id breaks ties so results are stable.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].DocumentID < candidates[j].DocumentID
	})

	var out []models.KnowledgeSnippet
	var spent int
	for _, c := range candidates {
		if spent+c.TokenCost > r.budget {
			continue
		}
		out = append(out, c)
		spent += c.TokenCost
	}

	slog.Debug("Retriever.Retrieve: retrieval complete", "candidates", len(candidates), "returned", len(out), "tokens", spent)
	return out
}

// CosineSimilarity computes the cosine similarity of two vectors. Mismatched
// lengths or zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EstimateTokens approximates the token cost of text at four characters per
// token, with a floor of one token for non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
