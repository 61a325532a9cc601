package tone

import (
	"testing"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

func TestClassifyNegative(t *testing.T) {
	c := NewLexiconClassifier()
	cases := []string{
		"this is absolutely unacceptable",
		"I am so frustrated with this",
		"worst service I have ever had, just terrible",
	}
	for _, text := range cases {
		if got := c.Classify(text); got != models.SentimentNegative {
			t.Errorf("Classify(%q) = %q, want negative", text, got)
		}
	}
}

func TestClassifyPositive(t *testing.T) {
	c := NewLexiconClassifier()
	cases := []string{
		"thanks, that was perfect",
		"you have been wonderful, I really appreciate it",
	}
	for _, text := range cases {
		if got := c.Classify(text); got != models.SentimentPositive {
			t.Errorf("Classify(%q) = %q, want positive", text, got)
		}
	}
}

func TestClassifyNeutral(t *testing.T) {
	c := NewLexiconClassifier()
	cases := []string{
		"I'd like to check my account balance",
		"can you move my appointment to Tuesday",
		"",
	}
	for _, text := range cases {
		if got := c.Classify(text); got != models.SentimentNeutral {
			t.Errorf("Classify(%q) = %q, want neutral", text, got)
		}
	}
}

func TestStrongWordsOutweighMildOnes(t *testing.T) {
	c := NewLexiconClassifier()
	// "thanks" (+1) against "unacceptable" (-2) nets negative.
	if got := c.Classify("thanks for nothing, this is unacceptable"); got != models.SentimentNegative {
		t.Errorf("expected negative, got %q", got)
	}
}

func TestPunctuationAndCaseIgnored(t *testing.T) {
	c := NewLexiconClassifier()
	if c.Score("THANKS!!!") != c.Score("thanks") {
		t.Error("expected case and punctuation to be ignored in scoring")
	}
}

func TestWithExtraWords(t *testing.T) {
	c := NewLexiconClassifier(WithExtraWords(map[string]float64{"churn": -2}))
	if got := c.Classify("I'm going to churn"); got != models.SentimentNegative {
		t.Errorf("expected the extended lexicon to apply, got %q", got)
	}
}

func TestWithThreshold(t *testing.T) {
	strict := NewLexiconClassifier(WithThreshold(3))
	if got := strict.Classify("thanks"); got != models.SentimentNeutral {
		t.Errorf("expected a wide neutral band, got %q", got)
	}
}
