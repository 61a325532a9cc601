package synth

// EmotionProfile shapes speech delivery for one emotion label.
type EmotionProfile struct {
	// Rate multiplies the requested speaking speed.
	Rate float64
	// Style is the delivery guidance passed to providers that accept it.
	Style string
}

// emotionProfiles is the blend table. Labels come from agent configuration
// and from the flow engine's per-turn emotion pick.
var emotionProfiles = map[string]EmotionProfile{
	"neutral":    {Rate: 1.0, Style: "Speak in a clear, even, professional tone."},
	"warm":       {Rate: 0.97, Style: "Speak warmly and personably, like a friendly receptionist."},
	"cheerful":   {Rate: 1.05, Style: "Speak brightly with an upbeat, smiling tone."},
	"empathetic": {Rate: 0.92, Style: "Speak gently and sincerely, with patience and understanding."},
	"calm":       {Rate: 0.9, Style: "Speak slowly and soothingly, with a steady reassuring cadence."},
	"urgent":     {Rate: 1.1, Style: "Speak briskly and directly, conveying that this matters."},
	"apologetic": {Rate: 0.92, Style: "Speak softly and sincerely, conveying genuine regret."},
}

// ApplyEmotion resolves the request's emotion label against the blend table,
// folding the profile's rate into the requested speed and attaching delivery
// instructions. Unknown labels fall back to neutral.
func ApplyEmotion(req Request) Request {
	profile, ok := emotionProfiles[req.Emotion]
	if !ok {
		profile = emotionProfiles["neutral"]
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}
	req.Speed = clampSpeed(speed * profile.Rate)
	if req.Instructions == "" {
		req.Instructions = profile.Style
	}
	return req
}

// Provider speed ranges cluster around 0.25..4.0; telephony speech outside
// 0.5..1.5 is hard to follow, so delivery stays inside that band.
func clampSpeed(s float64) float64 {
	if s < 0.5 {
		return 0.5
	}
	if s > 1.5 {
		return 1.5
	}
	return s
}
