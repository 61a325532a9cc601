package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomHex generates a random hexadecimal string of the given
// length, for non-cryptographic identifiers.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	const hexChars = "0123456789abcdef"
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(hexChars[rand.IntN(16)])
	}
	return b.String()
}

// GenerateRandomID generates a random ID of the form "{prefix}{hex}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// NewAudioID generates an identifier for a rendered audio clip. The id
// appears in playback URLs handed to the telephony gateway, so it must be
// unguessable enough that clips cannot be enumerated.
func NewAudioID() string {
	return GenerateRandomID("aud_", 32)
}
