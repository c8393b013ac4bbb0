package control

import (
	"errors"
	"fmt"
	"strings"
)

// Direction is one of the nine single-letter symbols the car firmware
// understands on /cmd?dir=.
type Direction string

const (
	Forward Direction = "F"
	Back    Direction = "B"
	Left    Direction = "L"
	Right   Direction = "R"
	Stop    Direction = "S"

	// Diagonals. The firmware decides what each of these does; the icons
	// drawn for them on the page do not necessarily match their compass
	// meaning, so they are named by symbol only.
	DiagonalG Direction = "G"
	DiagonalH Direction = "H"
	DiagonalI Direction = "I"
	DiagonalJ Direction = "J"
)

var ErrUnknownDirection = errors.New("unknown direction")

var directions = []Direction{Forward, Back, Left, Right, Stop, DiagonalG, DiagonalH, DiagonalI, DiagonalJ}

// Directions returns the full alphabet in a stable order.
func Directions() []Direction {
	out := make([]Direction, len(directions))
	copy(out, directions)
	return out
}

func (d Direction) Valid() bool {
	for _, known := range directions {
		if d == known {
			return true
		}
	}
	return false
}

func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
	}
	return d, nil
}
