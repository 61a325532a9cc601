// Package session manages the live call sessions of the service. The
// registry owns every in-flight call, serializes all work per call id, and
// reaps sessions that idle past the configured timeout.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// DefaultIdleTimeout is how long a session may sit without activity before
// the reaper closes it.
const DefaultIdleTimeout = 30 * time.Minute

// eventBuffer sizes the outbound event channel. Consumers that fall behind
// lose events rather than stalling call processing.
const eventBuffer = 64

// Opts holds configuration options for creating a Registry.
type Opts struct {
	// IdleTimeout overrides DefaultIdleTimeout when > 0.
	IdleTimeout time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Option configures a Registry.
type Option func(*Opts)

// WithIdleTimeout sets the reaper's idle cutoff.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Opts) { o.IdleTimeout = d }
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// entry pairs a session with its keyed lock. The lock serializes every
// operation touching the session, so turn processing for one call never
// overlaps.
type entry struct {
	mu      sync.Mutex
	session *models.CallSession
	closed  bool
}

// Registry holds all live sessions. Lookups take a read lock on the map;
// mutations of a session take only that session's lock, so concurrent calls
// never contend with each other.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	idleTimeout time.Duration
	now         func() time.Time
	events      chan models.Event
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	options := Opts{}
	for _, opt := range opts {
		opt(&options)
	}
	idle := DefaultIdleTimeout
	if options.IdleTimeout > 0 {
		idle = options.IdleTimeout
	}
	now := time.Now
	if options.Clock != nil {
		now = options.Clock
	}
	return &Registry{
		sessions:    make(map[string]*entry),
		idleTimeout: idle,
		now:         now,
		events:      make(chan models.Event, eventBuffer),
	}
}

// Events returns the registry's outbound event stream. Currently only
// session-reaped events flow here.
func (r *Registry) Events() <-chan models.Event {
	return r.events
}

// Open returns the live session for the event's call id, creating it when
// absent. Opening is idempotent: a second start event for the same call id
// returns the existing session with created=false and changes nothing.
func (r *Registry) Open(event *models.CallStarted) (*models.CallSession, bool, error) {
	if err := event.Validate(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[event.CallID]; ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.closed {
			slog.Debug("Registry.Open: session already open", "callID", event.CallID)
			return e.session, false, nil
		}
		// A closed entry still in the map is mid-removal; fall through and
		// replace it.
	}

	session := models.NewCallSession(event.CallID, event.CallerAddress, r.now())
	r.sessions[event.CallID] = &entry{session: session}
	slog.Info("Registry.Open: session created", "callID", event.CallID, "caller", event.CallerAddress, "active", len(r.sessions))
	return session, true, nil
}

// WithSession runs fn with the session for callID under its keyed lock. All
// turn processing goes through here, which is what guarantees serialized
// mutation per call.
func (r *Registry) WithSession(callID string, fn func(*models.CallSession) error) error {
	e, err := r.lookup(callID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return models.ErrSessionNotFound
	}
	return fn(e.session)
}

// Close ends the session for callID, removes it from the registry, and
// returns the final session for archiving. Closing an unknown or already
// closed session returns ErrSessionNotFound.
func (r *Registry) Close(callID, reason string) (*models.CallSession, error) {
	e, err := r.lookup(callID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, models.ErrSessionNotFound
	}
	e.closed = true
	e.session.Status = models.SessionStatusEnded
	e.session.EndReason = reason
	session := e.session
	e.mu.Unlock()

	r.remove(callID)
	slog.Info("Registry.Close: session closed", "callID", callID, "reason", reason, "turns", session.State.TurnCount)
	return session, nil
}

// ReapIdle closes every session idle past the timeout and returns them for
// archiving. One session-reaped event is emitted per closed session.
func (r *Registry) ReapIdle() []*models.CallSession {
	now := r.now()
	var reaped []*models.CallSession

	for _, callID := range r.callIDs() {
		e, err := r.lookup(callID)
		if err != nil {
			continue
		}
		e.mu.Lock()
		if e.closed || now.Sub(e.session.LastActivity) < r.idleTimeout {
			e.mu.Unlock()
			continue
		}
		e.closed = true
		e.session.Status = models.SessionStatusReaped
		e.session.EndReason = "idle timeout"
		session := e.session
		e.mu.Unlock()

		r.remove(callID)
		reaped = append(reaped, session)

		slog.Info("Registry.ReapIdle: session reaped", "callID", callID, "idle", now.Sub(session.LastActivity))
		r.emit(models.Event{
			Type:      models.EventSessionReaped,
			CallID:    callID,
			Timestamp: now,
			Payload: models.SessionReapedPayload{
				CallerAddress: session.CallerAddress,
				AgentID:       session.AgentID,
				IdleFor:       now.Sub(session.LastActivity),
				TurnCount:     session.State.TurnCount,
			},
		})
	}
	return reaped
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a read-only view of every live session.
func (r *Registry) List() []models.SessionInfo {
	var infos []models.SessionInfo
	for _, callID := range r.callIDs() {
		e, err := r.lookup(callID)
		if err != nil {
			continue
		}
		e.mu.Lock()
		if !e.closed {
			infos = append(infos, e.session.Info())
		}
		e.mu.Unlock()
	}
	return infos
}

// Get returns the read-only view of one live session.
func (r *Registry) Get(callID string) (models.SessionInfo, error) {
	e, err := r.lookup(callID)
	if err != nil {
		return models.SessionInfo{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return models.SessionInfo{}, models.ErrSessionNotFound
	}
	return e.session.Info(), nil
}

func (r *Registry) lookup(callID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[callID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return e, nil
}

func (r *Registry) remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

func (r *Registry) callIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// emit pushes an event without blocking; a full channel drops the event.
func (r *Registry) emit(event models.Event) {
	select {
	case r.events <- event:
	default:
		slog.Warn("Registry.emit: event channel full, dropping event", "type", event.Type, "callID", event.CallID)
	}
}
