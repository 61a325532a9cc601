package util

import (
	"strings"
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"off", true, false},
		{"0", true, false},
		{"", true, true},
		{"", false, false},
		{"garbage", true, true},
	}
	for _, c := range cases {
		t.Setenv("VOICEPIPE_TEST_BOOL", c.value)
		if got := ParseBoolEnv("VOICEPIPE_TEST_BOOL", c.fallback); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.fallback, got, c.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("VOICEPIPE_TEST_INT", "42")
	if got := ParseIntEnv("VOICEPIPE_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("VOICEPIPE_TEST_INT", "not a number")
	if got := ParseIntEnv("VOICEPIPE_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("VOICEPIPE_TEST_DUR", "45m")
	if got := ParseDurationEnv("VOICEPIPE_TEST_DUR", time.Minute); got != 45*time.Minute {
		t.Errorf("expected 45m, got %v", got)
	}
	t.Setenv("VOICEPIPE_TEST_DUR", "soon")
	if got := ParseDurationEnv("VOICEPIPE_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("expected default 1m, got %v", got)
	}
}

func TestGenerateRandomHex(t *testing.T) {
	hex := GenerateRandomHex(32)
	if len(hex) != 32 {
		t.Fatalf("expected length 32, got %d", len(hex))
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("unexpected character %q", r)
		}
	}
	if GenerateRandomHex(0) != "" || GenerateRandomHex(-1) != "" {
		t.Error("expected empty string for non-positive lengths")
	}
}

func TestNewAudioID(t *testing.T) {
	id := NewAudioID()
	if !strings.HasPrefix(id, "aud_") || len(id) != len("aud_")+32 {
		t.Errorf("unexpected audio id %q", id)
	}
	if NewAudioID() == NewAudioID() {
		t.Error("expected distinct ids")
	}
}
