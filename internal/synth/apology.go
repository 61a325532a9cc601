package synth

import "math"

// The apology clip is generated rather than shipped as an asset: a soft
// two-note chime at telephony rate, played when every provider is down so
// the caller hears something instead of silence. The gateway pairs it with
// a text fallback prompt.

func apologyClip() *Audio {
	const (
		noteDuration = 350 // ms per note
		gap          = 80  // ms between notes
		amplitude    = 9000
	)
	samples := toneSamples(523.25, noteDuration, amplitude) // C5
	samples = append(samples, make([]int16, TelephonyRate*gap/1000)...)
	samples = append(samples, toneSamples(392.00, noteDuration, amplitude)...) // G4

	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[2*i] = byte(uint16(s))
		data[2*i+1] = byte(uint16(s) >> 8)
	}
	return &Audio{Data: data, SampleRate: TelephonyRate, Channels: 1, Provider: "builtin", Apology: true}
}

// toneSamples renders a sine tone with a short fade at both ends to avoid
// clicks on the trunk.
func toneSamples(freq float64, durationMs, amplitude int) []int16 {
	n := TelephonyRate * durationMs / 1000
	fade := TelephonyRate / 100 // 10ms
	out := make([]int16, n)
	for i := range out {
		v := float64(amplitude) * math.Sin(2*math.Pi*freq*float64(i)/float64(TelephonyRate))
		if i < fade {
			v *= float64(i) / float64(fade)
		}
		if n-i < fade {
			v *= float64(n-i) / float64(fade)
		}
		out[i] = int16(v)
	}
	return out
}
