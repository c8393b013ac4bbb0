package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrUnknownButton = errors.New("unknown button")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrSessionClosed = errors.New("session closed")
)

type EventType string

const (
	EventPress          EventType = "press"
	EventRelease        EventType = "release"
	EventPointerCancel  EventType = "pointer_cancel"
	EventSpeed          EventType = "speed"
	EventToggleAutoHome EventType = "toggle_auto_home"
	EventGoHome         EventType = "go_home"
)

// Event is one UI input. Speed events carry car and/or steer.
type Event struct {
	Type    EventType `json:"type"`
	Button  string    `json:"button,omitempty"`
	Pointer int       `json:"pointer,omitempty"`
	Car     *int      `json:"car,omitempty"`
	Steer   *int      `json:"steer,omitempty"`
}

// ButtonResolver maps a page button id to the symbol it is bound to.
type ButtonResolver interface {
	Resolve(buttonID string) (Direction, bool)
}

// State is the client-visible snapshot of a session.
type State struct {
	Session        string       `json:"session"`
	HomeMode       HomeMode     `json:"home_mode"`
	AutoHomeActive bool         `json:"auto_home_active"`
	ManualHome     ControlState `json:"manual_home"`
	CarSpeed       int          `json:"car_speed"`
	SteerSpeed     int          `json:"steer_speed"`
	Pressed        []PressToken `json:"pressed"`
}

type request struct {
	ev    *Event
	reply chan result
}

type result struct {
	state State
	err   error
}

// Session is the state object for one control surface: a Tracker and a
// Dispatcher sharing a single event loop. Run must be running for Apply and
// Snapshot to make progress. All state is touched only by the Run goroutine.
type Session struct {
	ID string

	buttons    ButtonResolver
	tracker    *Tracker
	dispatcher *Dispatcher

	requests chan request
	done     chan struct{}
}

func NewSession(id string, buttons ButtonResolver, send Sender) *Session {
	if send == nil {
		send = Discard
	}
	stamped := SenderFunc(func(cmd Command) {
		cmd.Session = id
		send.Send(cmd)
	})
	d := NewDispatcher(stamped)
	return &Session{
		ID:         id,
		buttons:    buttons,
		tracker:    NewTracker(d),
		dispatcher: d,
		requests:   make(chan request),
		done:       make(chan struct{}),
	}
}

// Run reconciles the initial render state and then serves events until ctx
// is cancelled. On exit every still-held button is released so the car is
// never left driving by a vanished client.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	s.dispatcher.Reconcile()
	for {
		select {
		case <-ctx.Done():
			if n := s.tracker.ReleaseAll(); n > 0 {
				slog.Info("session closed with held buttons", "session", s.ID, "released", n)
			}
			return
		case req := <-s.requests:
			var err error
			if req.ev != nil {
				err = s.apply(*req.ev)
			}
			req.reply <- result{state: s.snapshot(), err: err}
		}
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Apply hands ev to the event loop and returns the state after it was
// applied. It waits only for the in-memory transition, never for delivery.
func (s *Session) Apply(ctx context.Context, ev Event) (State, error) {
	return s.call(ctx, &ev)
}

func (s *Session) Snapshot(ctx context.Context) (State, error) {
	return s.call(ctx, nil)
}

func (s *Session) call(ctx context.Context, ev *Event) (State, error) {
	req := request{ev: ev, reply: make(chan result, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return State{}, ErrSessionClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	res := <-req.reply
	return res.state, res.err
}

func (s *Session) apply(ev Event) error {
	switch ev.Type {
	case EventPress:
		dir, ok := s.buttons.Resolve(ev.Button)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownButton, ev.Button)
		}
		if !s.tracker.PressStart(ev.Button, ev.Pointer, dir) {
			slog.Debug("duplicate press dropped", "session", s.ID, "button", ev.Button)
		}
	case EventRelease:
		if _, ok := s.buttons.Resolve(ev.Button); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownButton, ev.Button)
		}
		if !s.tracker.PressEnd(ev.Button) {
			slog.Debug("release without press dropped", "session", s.ID, "button", ev.Button)
		}
	case EventPointerCancel:
		s.tracker.CancelPointer(ev.Pointer)
	case EventSpeed:
		if ev.Car == nil && ev.Steer == nil {
			return fmt.Errorf("%w: speed event needs car or steer", ErrInvalidEvent)
		}
		if ev.Car != nil {
			s.dispatcher.SetCarSpeed(*ev.Car)
		}
		if ev.Steer != nil {
			s.dispatcher.SetSteerSpeed(*ev.Steer)
		}
	case EventToggleAutoHome:
		s.dispatcher.ToggleAutoHome()
	case EventGoHome:
		if !s.dispatcher.GoHome() {
			slog.Debug("go home ignored in auto mode", "session", s.ID)
		}
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidEvent, ev.Type)
	}
	return nil
}

func (s *Session) snapshot() State {
	return State{
		Session:        s.ID,
		HomeMode:       s.dispatcher.HomeMode(),
		AutoHomeActive: s.dispatcher.AutoHomeActive(),
		ManualHome:     s.dispatcher.Manual(),
		CarSpeed:       s.dispatcher.CarSpeed(),
		SteerSpeed:     s.dispatcher.SteerSpeed(),
		Pressed:        s.tracker.Active(),
	}
}
