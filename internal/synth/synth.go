// Package synth turns reply text into telephony-ready audio. Providers are
// tried in a configured fallback order under a per-provider timeout; when
// every provider fails, a canned apology clip is returned so the caller never
// hears dead air.
package synth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultProviderTimeout bounds each provider attempt.
const DefaultProviderTimeout = 2 * time.Second

// ErrNoProviders is returned when an orchestrator is built without providers.
var ErrNoProviders = errors.New("synthesis requires at least one provider")

// Request describes one synthesis job.
type Request struct {
	Text     string
	Voice    string  // provider voice id
	Speed    float64 // 0 means default
	Emotion  string  // emotion label, resolved against the blend table
	Language string
	// Instructions is the delivery guidance derived from the emotion blend.
	// Providers that support style prompts pass it through.
	Instructions string
}

// Audio is raw synthesized audio plus enough metadata to convert it.
type Audio struct {
	Data       []byte
	SampleRate int
	Channels   int
	Provider   string
	Apology    bool
}

// Provider renders speech. Implementations must honor ctx cancellation.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// Opts holds configuration options for creating an Orchestrator.
type Opts struct {
	// ProviderTimeout overrides DefaultProviderTimeout when > 0.
	ProviderTimeout time.Duration
	// Apology overrides the built-in apology clip.
	Apology *Audio
}

// Option configures an Orchestrator.
type Option func(*Opts)

// WithProviderTimeout sets the per-provider attempt timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ProviderTimeout = d }
}

// WithApologyClip sets the audio returned when every provider fails.
func WithApologyClip(a *Audio) Option {
	return func(o *Opts) { o.Apology = a }
}

// Orchestrator runs the provider fallback chain.
type Orchestrator struct {
	providers []Provider
	timeout   time.Duration
	apology   *Audio
}

// NewOrchestrator creates an Orchestrator trying providers in the given
// order.
func NewOrchestrator(providers []Provider, opts ...Option) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	options := Opts{}
	for _, opt := range opts {
		opt(&options)
	}
	timeout := DefaultProviderTimeout
	if options.ProviderTimeout > 0 {
		timeout = options.ProviderTimeout
	}
	apology := options.Apology
	if apology == nil {
		apology = apologyClip()
	}
	return &Orchestrator{providers: providers, timeout: timeout, apology: apology}, nil
}

// Synthesize renders req with the first provider that succeeds. Each attempt
// runs under its own timeout; a provider that times out or errors is skipped
// and the next one is tried. When the whole chain fails the apology clip is
// returned along with a degraded error describing the failures.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	req = ApplyEmotion(req)

	var errs []error
	for _, p := range o.providers {
		if ctx.Err() != nil {
			break
		}
		attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
		audio, err := p.Synthesize(attemptCtx, req)
		cancel()
		if err != nil {
			slog.Warn("Orchestrator.Synthesize: provider failed, trying next", "provider", p.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		audio.Provider = p.Name()
		slog.Debug("Orchestrator.Synthesize: rendered", "provider", p.Name(), "bytes", len(audio.Data))
		return audio, nil
	}

	slog.Error("Orchestrator.Synthesize: all providers failed, returning apology clip", "attempts", len(errs))
	clip := *o.apology
	clip.Apology = true
	return &clip, errors.Join(errs...)
}

// Providers returns the configured provider names in fallback order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}
