// Package api provides the HTTP surface of VoicePipe.
//
// It exposes the telephony webhook endpoints that drive live calls (call
// start, transcribed utterances, call status), the audio playback endpoint
// the gateway fetches synthesized clips from, and a small admin API for
// sessions, agents, and archived calls. Every telephony endpoint passes a
// signature validation gate before any session state is touched.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/AKillionVoice/voicepipe/internal/call"
	"github.com/AKillionVoice/voicepipe/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// shutdownTimeout bounds how long Run waits for in-flight requests on exit.
const shutdownTimeout = 10 * time.Second

// Opts holds configuration options for creating a Server.
type Opts struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// APIKey guards the admin endpoints when non-empty.
	APIKey string
	// PublicURL is the externally visible base URL of this service, used to
	// build absolute audio URLs and to validate webhook signatures behind a
	// proxy. No trailing slash.
	PublicURL string
	// TwilioAuthToken enables webhook signature validation when non-empty.
	TwilioAuthToken string
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAPIKey sets the admin API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithPublicURL sets the externally visible base URL.
func WithPublicURL(url string) Option {
	return func(o *Opts) { o.PublicURL = url }
}

// WithTwilioAuthToken enables webhook signature validation with the given
// auth token.
func WithTwilioAuthToken(token string) Option {
	return func(o *Opts) { o.TwilioAuthToken = token }
}

// Server handles the VoicePipe HTTP endpoints.
type Server struct {
	addr      string
	apiKey    string
	publicURL string
	coord     *call.Coordinator
	store     store.Store
	validator *twilioclient.RequestValidator
}

// NewServer creates a Server around the call coordinator and store.
func NewServer(coord *call.Coordinator, st store.Store, opts ...Option) *Server {
	options := Opts{}
	for _, opt := range opts {
		opt(&options)
	}
	addr := options.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:      addr,
		apiKey:    options.APIKey,
		publicURL: options.PublicURL,
		coord:     coord,
		store:     st,
	}
	if options.TwilioAuthToken != "" {
		v := twilioclient.NewRequestValidator(options.TwilioAuthToken)
		s.validator = &v
	} else {
		slog.Warn("Server.NewServer: no Twilio auth token configured, webhook signature validation disabled")
	}
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Telephony webhooks, all behind the signature gate.
	mux.HandleFunc("/twilio/voice/inbound", s.inboundHandler)
	mux.HandleFunc("/twilio/voice/process", s.processHandler)
	mux.HandleFunc("/twilio/voice/status", s.statusHandler)

	// Synthesized clip playback for the gateway.
	mux.HandleFunc("/audio/", s.audioHandler)

	// Admin API.
	mux.HandleFunc("/api/sessions", s.requireAPIKey(s.sessionsHandler))
	mux.HandleFunc("/api/sessions/", s.requireAPIKey(s.sessionHandler))
	mux.HandleFunc("/api/agents", s.requireAPIKey(s.agentsHandler))
	mux.HandleFunc("/api/calls", s.requireAPIKey(s.callsHandler))

	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run serves HTTP until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr, "signature_validation", s.validator != nil)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
