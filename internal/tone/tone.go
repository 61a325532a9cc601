// Package tone classifies the emotional tone of caller speech.
//
// The default classifier is deliberately lexical: transcribed telephony
// speech is short and noisy, and a weighted keyword read is cheap,
// deterministic, and adds no model latency to the turn. The conversation
// engine treats the classifier as pluggable, so a model-backed
// implementation can replace the lexicon without touching the engine.
package tone

import (
	"strings"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// Classifier reads the sentiment of one utterance.
type Classifier interface {
	Classify(text string) models.Sentiment
}

// Default score thresholds: utterances scoring inside (-threshold,
// +threshold) read as neutral.
const DefaultThreshold = 0.5

// defaultLexicon maps words to sentiment weights. Strong words carry more
// weight than mild ones so "furious" outvotes a polite "thanks".
var defaultLexicon = map[string]float64{
	// Negative.
	"angry": -1, "furious": -2, "frustrated": -1, "frustrating": -1,
	"upset": -1, "terrible": -1, "awful": -1, "annoyed": -1,
	"annoying": -1, "ridiculous": -1.5, "worst": -1.5, "hate": -1.5,
	"unacceptable": -2, "useless": -1.5, "disappointed": -1,

	// Positive.
	"great": 1, "perfect": 1.5, "excellent": 1.5, "thank": 1,
	"thanks": 1, "awesome": 1.5, "wonderful": 1.5, "love": 1.5,
	"fantastic": 1.5, "appreciate": 1, "helpful": 1,
}

// Opts holds configuration options for creating a LexiconClassifier.
type Opts struct {
	// Threshold overrides DefaultThreshold when > 0.
	Threshold float64
	// Extra adds words to the default lexicon; negative weights read as
	// negative sentiment.
	Extra map[string]float64
}

// Option configures a LexiconClassifier.
type Option func(*Opts)

// WithThreshold sets the neutral band half-width.
func WithThreshold(t float64) Option {
	return func(o *Opts) { o.Threshold = t }
}

// WithExtraWords extends the lexicon.
func WithExtraWords(words map[string]float64) Option {
	return func(o *Opts) { o.Extra = words }
}

// LexiconClassifier scores utterances against a weighted word list.
type LexiconClassifier struct {
	lexicon   map[string]float64
	threshold float64
}

// NewLexiconClassifier creates the default keyword classifier.
func NewLexiconClassifier(opts ...Option) *LexiconClassifier {
	options := Opts{}
	for _, opt := range opts {
		opt(&options)
	}
	threshold := DefaultThreshold
	if options.Threshold > 0 {
		threshold = options.Threshold
	}
	lexicon := make(map[string]float64, len(defaultLexicon)+len(options.Extra))
	for w, weight := range defaultLexicon {
		lexicon[w] = weight
	}
	for w, weight := range options.Extra {
		lexicon[strings.ToLower(w)] = weight
	}
	return &LexiconClassifier{lexicon: lexicon, threshold: threshold}
}

// Score sums the sentiment weights of the words in text. Positive scores
// lean positive, negative lean negative.
func (c *LexiconClassifier) Score(text string) float64 {
	var score float64
	for _, word := range tokenize(text) {
		score += c.lexicon[word]
	}
	return score
}

// Classify implements Classifier.
func (c *LexiconClassifier) Classify(text string) models.Sentiment {
	score := c.Score(text)
	switch {
	case score <= -c.threshold:
		return models.SentimentNegative
	case score >= c.threshold:
		return models.SentimentPositive
	default:
		return models.SentimentNeutral
	}
}

// tokenize lower-cases and splits on anything that is not a letter or
// apostrophe, so "Thanks!" and "thanks" score the same.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && r != '\''
	})
}
