package control

import (
	"net/url"
	"strconv"
)

type Kind string

const (
	KindDirection  Kind = "direction"
	KindCarSpeed   Kind = "car_speed"
	KindSteerSpeed Kind = "steer_speed"
	KindAutoHome   Kind = "auto_home"
	KindManualHome Kind = "manual_home"
)

const (
	PathCmd   = "/cmd"
	PathSpeed = "/speed"
)

// Command is one outbound request to the car. It maps to a single
// parameterised GET with no body: Path + "?" + Param + "=" + Value.
type Command struct {
	Kind  Kind
	Path  string
	Param string
	Value string

	// Session is the id of the control session that produced the command.
	// It is never sent to the car.
	Session string
}

func DirectionCommand(d Direction) Command {
	return Command{Kind: KindDirection, Path: PathCmd, Param: "dir", Value: string(d)}
}

func CarSpeedCommand(v int) Command {
	return Command{Kind: KindCarSpeed, Path: PathSpeed, Param: "car", Value: strconv.Itoa(v)}
}

func SteerSpeedCommand(v int) Command {
	return Command{Kind: KindSteerSpeed, Path: PathSpeed, Param: "steer", Value: strconv.Itoa(v)}
}

func AutoHomeCommand(enabled bool) Command {
	v := "0"
	if enabled {
		v = "1"
	}
	return Command{Kind: KindAutoHome, Path: PathCmd, Param: "autoHome", Value: v}
}

func ManualHomeCommand() Command {
	return Command{Kind: KindManualHome, Path: PathCmd, Param: "manualHome", Value: "1"}
}

func (c Command) Query() url.Values {
	return url.Values{c.Param: []string{c.Value}}
}

// String renders the request target, e.g. "/cmd?dir=F".
func (c Command) String() string {
	return c.Path + "?" + c.Query().Encode()
}

// Sender delivers commands fire-and-forget. Implementations must not block
// the caller on the network and must not report delivery failures back.
type Sender interface {
	Send(cmd Command)
}

type SenderFunc func(cmd Command)

func (f SenderFunc) Send(cmd Command) { f(cmd) }

// Discard drops every command.
var Discard Sender = SenderFunc(func(Command) {})
