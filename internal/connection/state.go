package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// Email connection states
const (
	Disconnected = "disconnected"
	Connecting   = "connecting"
	Connected    = "connected"
	Failed       = "error"
)

// Events driving the connection machine
const (
	EventConnect     = "connect"
	EventEstablished = "established"
	EventFail        = "fail"
	EventDisconnect  = "disconnect"
)

// ErrInvalidTransition is returned when an event is not allowed from the
// current state.
var ErrInvalidTransition = errors.New("invalid connection transition")

// View is a read-only copy of the state for rendering
type View struct {
	State string    `json:"state"`
	Error string    `json:"error,omitempty"`
	Since time.Time `json:"since"`
}

// Connected reports whether email sync may run
func (v View) Connected() bool { return v.State == Connected }

// State tracks whether the user's mailbox is linked to the record store.
// It replaces the browser-side "connected" flag with explicit transitions:
// disconnected -> connecting -> connected | error.
type State struct {
	mu      sync.Mutex
	fsm     *fsm.FSM
	lastErr string
	since   time.Time
	log     *slog.Logger
}

func New(log *slog.Logger) *State {
	s := &State{since: time.Now(), log: log}

	s.fsm = fsm.NewFSM(
		Disconnected,
		fsm.Events{
			{Name: EventConnect, Src: []string{Disconnected, Failed}, Dst: Connecting},
			{Name: EventEstablished, Src: []string{Connecting, Disconnected, Failed}, Dst: Connected},
			{Name: EventFail, Src: []string{Connecting, Connected}, Dst: Failed},
			{Name: EventDisconnect, Src: []string{Connecting, Connected, Failed}, Dst: Disconnected},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				s.since = time.Now()
				if e.Dst != Failed {
					s.lastErr = ""
				}
				s.log.Info("email connection state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
	return s
}

// Current returns the current state name
func (s *State) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.Current()
}

// View returns a snapshot for templates and JSON
func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{State: s.fsm.Current(), Error: s.lastErr, Since: s.since}
}

// Connect marks the start of the provider authorization round trip.
func (s *State) Connect(ctx context.Context) error {
	return s.fire(ctx, EventConnect)
}

// Established records a completed authorization.
func (s *State) Established(ctx context.Context) error {
	return s.fire(ctx, EventEstablished)
}

// Fail records cause and moves to the error state.
func (s *State) Fail(ctx context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.event(ctx, EventFail); err != nil {
		return err
	}
	if cause != nil {
		s.lastErr = cause.Error()
	}
	return nil
}

// Disconnect forgets the link.
func (s *State) Disconnect(ctx context.Context) error {
	return s.fire(ctx, EventDisconnect)
}

func (s *State) fire(ctx context.Context, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event(ctx, event)
}

// event must be called with s.mu held.
func (s *State) event(ctx context.Context, event string) error {
	err := s.fsm.Event(ctx, event)
	if err == nil {
		return nil
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, s.fsm.Current())
	}
	return fmt.Errorf("connection event %s: %w", event, err)
}
