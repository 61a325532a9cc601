package flow

import (
	"strings"
	"time"
)

// DefaultInterruptionWindow is the tail of reply playback during which caller
// speech is treated as normal turn-taking rather than a barge-in, unless it
// opens with an interruption marker.
const DefaultInterruptionWindow = 1500 * time.Millisecond

// interruptionMarkers are openings that signal the caller is cutting in to
// redirect the agent, even right at the end of playback.
var interruptionMarkers = []string{"actually", "wait", "no,", "no no", "stop", "hold on", "hang on"}

// IsInterruption reports whether an utterance is a barge-in. Speech that
// arrives after playback finished is never an interruption. Speech deep in
// playback always is; speech within the final window only counts when it
// opens with an interruption marker. A non-positive window falls back to
// DefaultInterruptionWindow.
func IsInterruption(window, playbackRemaining time.Duration, text string) bool {
	if window <= 0 {
		window = DefaultInterruptionWindow
	}
	if playbackRemaining <= 0 {
		return false
	}
	if playbackRemaining > window {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, marker := range interruptionMarkers {
		if strings.HasPrefix(lower, marker) {
			return true
		}
	}
	return false
}
