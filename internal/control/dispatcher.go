package control

type HomeMode string

const (
	HomeManual HomeMode = "manual"
	HomeAuto   HomeMode = "auto"
)

const (
	MinCarSpeed       = 0
	MaxCarSpeed       = 100
	DefaultCarSpeed   = 0
	MinSteerSpeed     = 1
	MaxSteerSpeed     = 100
	DefaultSteerSpeed = 75
)

// ControlState is how a page control is rendered.
type ControlState struct {
	Enabled bool `json:"enabled"`
	Active  bool `json:"active"`
}

// Dispatcher maps intents to the fixed command vocabulary and owns the
// auto/manual home state machine. Like Tracker it is owned by a single
// Session and must not be shared across goroutines.
type Dispatcher struct {
	send Sender

	mode       HomeMode
	manual     ControlState
	reconciled bool

	carSpeed   int
	steerSpeed int
}

func NewDispatcher(send Sender) *Dispatcher {
	if send == nil {
		send = Discard
	}
	return &Dispatcher{
		send: send,
		mode: HomeManual,
		// The manual button starts enabled but unstyled until Reconcile.
		manual:     ControlState{Enabled: true},
		carSpeed:   DefaultCarSpeed,
		steerSpeed: DefaultSteerSpeed,
	}
}

// Drive implements Driver.
func (d *Dispatcher) Drive(dir Direction) {
	d.send.Send(DirectionCommand(dir))
}

// Reconcile brings the manual control in line with the toggle on first
// render: with the toggle inactive the manual control is enabled and
// marked active. Only the first call has any effect.
func (d *Dispatcher) Reconcile() bool {
	if d.reconciled {
		return false
	}
	d.reconciled = true
	if d.mode != HomeAuto {
		d.manual = ControlState{Enabled: true, Active: true}
	}
	return true
}

// ToggleAutoHome flips between Manual and Auto and returns the new mode.
func (d *Dispatcher) ToggleAutoHome() HomeMode {
	if d.mode == HomeAuto {
		d.mode = HomeManual
		d.manual = ControlState{Enabled: true, Active: true}
		d.send.Send(AutoHomeCommand(false))
		return d.mode
	}
	d.mode = HomeAuto
	d.manual = ControlState{Enabled: false, Active: false}
	d.send.Send(AutoHomeCommand(true))
	return d.mode
}

// GoHome fires the one-shot manual home trigger. The control is disabled
// in Auto, so the call is dropped there.
func (d *Dispatcher) GoHome() bool {
	if d.mode != HomeManual || !d.manual.Enabled {
		return false
	}
	d.send.Send(ManualHomeCommand())
	return true
}

// SetCarSpeed dispatches the absolute slider value, clamped to [0,100].
func (d *Dispatcher) SetCarSpeed(v int) int {
	d.carSpeed = clamp(v, MinCarSpeed, MaxCarSpeed)
	d.send.Send(CarSpeedCommand(d.carSpeed))
	return d.carSpeed
}

// SetSteerSpeed dispatches the absolute slider value, clamped to [1,100].
func (d *Dispatcher) SetSteerSpeed(v int) int {
	d.steerSpeed = clamp(v, MinSteerSpeed, MaxSteerSpeed)
	d.send.Send(SteerSpeedCommand(d.steerSpeed))
	return d.steerSpeed
}

func (d *Dispatcher) HomeMode() HomeMode   { return d.mode }
func (d *Dispatcher) Manual() ControlState { return d.manual }
func (d *Dispatcher) AutoHomeActive() bool { return d.mode == HomeAuto }
func (d *Dispatcher) CarSpeed() int        { return d.carSpeed }
func (d *Dispatcher) SteerSpeed() int      { return d.steerSpeed }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
