package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/twilio/twilio-go/twiml"

	"github.com/AKillionVoice/voicepipe/internal/call"
	"github.com/AKillionVoice/voicepipe/internal/models"
)

// signatureHeader carries the HMAC the gateway computes over each webhook.
const signatureHeader = "X-Twilio-Signature"

// terminalCallStatuses are the gateway status values that mean the call is
// over. Intermediate statuses (ringing, in-progress) are acknowledged but do
// not tear down the session.
var terminalCallStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// validateSignature checks the webhook's origin before any session state is
// touched. Requests fail closed: a missing or wrong signature is rejected.
// Returns true when validation is disabled (no auth token configured).
func (s *Server) validateSignature(r *http.Request) bool {
	if s.validator == nil {
		return true
	}
	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}
	return s.validator.Validate(s.requestURL(r), params, r.Header.Get(signatureHeader))
}

// requestURL reconstructs the URL the gateway signed. Behind a proxy the
// configured public URL is authoritative; otherwise the request itself is.
func (s *Server) requestURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// parseCallStarted maps the gateway's inbound-call form to the event type.
func parseCallStarted(r *http.Request) *models.CallStarted {
	return &models.CallStarted{
		CallID:        r.PostForm.Get("CallSid"),
		CallerAddress: r.PostForm.Get("From"),
		InitialSpeech: r.PostForm.Get("SpeechResult"),
		ReceivedAt:    time.Now(),
	}
}

// parseUtterance maps the gateway's speech-result form to the event type.
// PlaybackRemainingMs is a pass-through parameter our own TwiML embeds so
// the gateway reports how much of the last reply was still playing.
func parseUtterance(r *http.Request) *models.UtteranceReceived {
	event := &models.UtteranceReceived{
		CallID:     r.PostForm.Get("CallSid"),
		Text:       r.PostForm.Get("SpeechResult"),
		ReceivedAt: time.Now(),
	}
	if ms, err := strconv.Atoi(r.PostForm.Get("PlaybackRemainingMs")); err == nil && ms > 0 {
		event.PlaybackRemaining = time.Duration(ms) * time.Millisecond
	}
	return event
}

// parseCallEnded maps the gateway's status callback to the event type, or
// nil when the status is not terminal.
func parseCallEnded(r *http.Request) *models.CallEnded {
	status := r.PostForm.Get("CallStatus")
	if !terminalCallStatuses[status] {
		return nil
	}
	return &models.CallEnded{
		CallID:     r.PostForm.Get("CallSid"),
		Reason:     status,
		ReceivedAt: time.Now(),
	}
}

// turnTwiML renders the webhook reply for one processed turn: play the
// synthesized clip (or speak the text when synthesis degraded to nothing),
// then either hang up on a closing turn or gather the caller's next speech.
func (s *Server) turnTwiML(out call.TurnOutput) (string, error) {
	var verbs []twiml.Element
	if out.Audio.ID != "" {
		verbs = append(verbs, &twiml.VoicePlay{Url: s.audioURL(out.Audio.ID)})
	} else if out.Text != "" {
		verbs = append(verbs, &twiml.VoiceSay{Message: out.Text})
	}
	if out.Closing {
		verbs = append(verbs, &twiml.VoiceHangup{})
		return twiml.Voice(verbs)
	}
	verbs = append(verbs, s.gatherVerb())
	return twiml.Voice(verbs)
}

// hangupTwiML renders a spoken goodbye followed by a hangup.
func hangupTwiML(message string) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: message},
		&twiml.VoiceHangup{},
	})
}

// clarifyTwiML asks the caller to repeat themselves and listens again; used
// when an utterance could not be interpreted at all.
func (s *Server) clarifyTwiML() (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: "I'm sorry, I didn't catch that. Could you say that again?"},
		s.gatherVerb(),
	})
}

// gatherVerb listens for the caller's next utterance and posts the
// transcription back to the process endpoint.
func (s *Server) gatherVerb() *twiml.VoiceGather {
	return &twiml.VoiceGather{
		Input:         "speech",
		Action:        "/twilio/voice/process",
		Method:        http.MethodPost,
		SpeechTimeout: "auto",
	}
}

// audioURL builds the playback URL for a rendered clip. Relative URLs are
// resolved by the gateway against the webhook URL, so the public base is
// only needed when configured.
func (s *Server) audioURL(id string) string {
	return s.publicURL + "/audio/" + id
}

// writeTurnTwiML renders and writes the turn reply, falling back to a bare
// hangup if TwiML rendering itself fails.
func (s *Server) writeTurnTwiML(w http.ResponseWriter, out call.TurnOutput) {
	doc, err := s.turnTwiML(out)
	if err != nil {
		slog.Error("Server.writeTurnTwiML: failed to render TwiML", "error", err, "callID", out.CallID)
		doc, _ = hangupTwiML("I'm sorry, something went wrong. Please call back.")
	}
	writeTwiMLResponse(w, doc)
}
