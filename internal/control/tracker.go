package control

import "sort"

// PressToken records one physical contact currently holding a button.
type PressToken struct {
	ButtonID  string `json:"button"`
	PointerID int    `json:"pointer"`
}

// Driver receives the direction intents the Tracker decides to fire.
type Driver interface {
	Drive(d Direction)
}

// Tracker turns raw press/release events into exactly one start and one
// stop per held button. Browsers fire pointer, mouse and touch events for
// the same contact and multi-touch releases overlap, so both ends are
// idempotent: a second press on a held button and a release on a button
// that is not held are dropped.
//
// A Tracker is not safe for concurrent use; it belongs to one Session.
type Tracker struct {
	driver Driver
	active map[string]PressToken
}

func NewTracker(driver Driver) *Tracker {
	return &Tracker{driver: driver, active: map[string]PressToken{}}
}

// PressStart reports whether a start intent was fired.
func (t *Tracker) PressStart(buttonID string, pointerID int, dir Direction) bool {
	if _, held := t.active[buttonID]; held {
		return false
	}
	t.active[buttonID] = PressToken{ButtonID: buttonID, PointerID: pointerID}
	t.driver.Drive(dir)
	return true
}

// PressEnd reports whether a stop intent was fired.
func (t *Tracker) PressEnd(buttonID string) bool {
	if _, held := t.active[buttonID]; !held {
		return false
	}
	delete(t.active, buttonID)
	t.driver.Drive(Stop)
	return true
}

// CancelPointer ends every press claimed by pointerID and returns how many
// stops were fired.
func (t *Tracker) CancelPointer(pointerID int) int {
	n := 0
	for _, tok := range t.Active() {
		if tok.PointerID == pointerID && t.PressEnd(tok.ButtonID) {
			n++
		}
	}
	return n
}

// ReleaseAll ends every held press.
func (t *Tracker) ReleaseAll() int {
	n := 0
	for _, tok := range t.Active() {
		if t.PressEnd(tok.ButtonID) {
			n++
		}
	}
	return n
}

func (t *Tracker) Held(buttonID string) bool {
	_, ok := t.active[buttonID]
	return ok
}

// Active returns the held tokens sorted by button id.
func (t *Tracker) Active() []PressToken {
	out := make([]PressToken, 0, len(t.active))
	for _, tok := range t.active {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ButtonID < out[j].ButtonID })
	return out
}
