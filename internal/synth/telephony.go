package synth

// Telephony adaptation: provider output is PCM16 at whatever rate the
// provider renders; phone trunks want 8 kHz mono G.711 μ-law.

// TelephonyRate is the sample rate phone trunks expect.
const TelephonyRate = 8000

// AdaptForTelephony converts audio to 8 kHz mono μ-law. Input data is
// interpreted as little-endian PCM16.
func AdaptForTelephony(a *Audio) *Audio {
	samples := pcm16Samples(a.Data)
	if a.Channels > 1 {
		samples = downmix(samples, a.Channels)
	}
	if a.SampleRate != TelephonyRate && a.SampleRate > 0 {
		samples = resample(samples, a.SampleRate, TelephonyRate)
	}
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = MuLawEncode(s)
	}
	return &Audio{
		Data:       out,
		SampleRate: TelephonyRate,
		Channels:   1,
		Provider:   a.Provider,
		Apology:    a.Apology,
	}
}

// pcm16Samples reads little-endian 16-bit samples. A trailing odd byte is
// dropped.
func pcm16Samples(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return samples
}

// downmix averages interleaved channels into mono.
func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for f := 0; f < frames; f++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[f*channels+c])
		}
		out[f] = int16(sum / channels)
	}
	return out
}

// resample converts between rates by linear interpolation. Telephony output
// tolerates the quality; anything fancier is wasted below 4 kHz bandwidth.
func resample(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 {
		return samples
	}
	outLen := int(int64(len(samples)) * int64(to) / int64(from))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MuLawEncode compresses one PCM16 sample to G.711 μ-law.
func MuLawEncode(sample int16) byte {
	sign := byte(0)
	s := int(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := 7
	for mask := 0x4000; exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^(sign | byte(exponent<<4) | byte(mantissa))
}

// MuLawDecode expands one G.711 μ-law byte back to PCM16.
func MuLawDecode(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	s := (int(mantissa)<<3 + muLawBias) << exponent
	s -= muLawBias
	if sign != 0 {
		s = -s
	}
	return int16(s)
}
