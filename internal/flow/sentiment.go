package flow

import (
	"strings"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// classifySentiment reads the emotional tone of one utterance through the
// pluggable classifier. A missing classifier degrades to neutral rather than
// failing the turn.
func (e *Engine) classifySentiment(text string) models.Sentiment {
	if e.classifier == nil {
		return models.SentimentNeutral
	}
	return e.classifier.Classify(text)
}

// topicKeywords maps topic labels to the words that signal them in caller
// speech. Detection returns the first label whose keywords appear.
var topicKeywords = []struct {
	label string
	words []string
}{
	{"billing", []string{"bill", "invoice", "charge", "refund", "payment", "price", "cost"}},
	{"scheduling", []string{"appointment", "schedule", "book", "reschedule", "availability"}},
	{"technical issue", []string{"broken", "not working", "error", "crash", "bug", "doesn't work"}},
	{"account", []string{"account", "password", "login", "sign in", "profile"}},
	{"shipping", []string{"delivery", "shipping", "package", "tracking", "arrived"}},
	{"cancellation", []string{"cancel", "cancellation", "close my", "unsubscribe"}},
}

// DetectTopic labels the utterance with a conversation topic, or "" when no
// topic keywords appear.
func DetectTopic(text string) string {
	lower := strings.ToLower(text)
	for _, t := range topicKeywords {
		for _, w := range t.words {
			if strings.Contains(lower, w) {
				return t.label
			}
		}
	}
	return ""
}
