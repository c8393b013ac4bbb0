// Package layout describes the directional button grid of the control page
// and resolves button ids to the symbols they send.
package layout

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/salah0eldin/autonmous-iot-car/internal/control"
)

//go:embed layout.yaml
var defaultLayout []byte

const gridSize = 3

type Button struct {
	ID     string `yaml:"id" json:"id"`
	Symbol string `yaml:"symbol" json:"symbol"`
	Row    int    `yaml:"row" json:"row"`
	Col    int    `yaml:"col" json:"col"`
	Icon   string `yaml:"icon" json:"icon"`
}

type Layout struct {
	Buttons []Button `yaml:"buttons" json:"buttons"`

	byID map[string]control.Direction
}

// Default returns the built-in nine-button grid.
func Default() (*Layout, error) {
	return Parse(defaultLayout)
}

// Load reads a layout file, falling back to the built-in grid when path is empty.
func Load(path string) (*Layout, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if err := l.index(); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *Layout) index() error {
	if len(l.Buttons) == 0 {
		return errors.New("layout has no buttons")
	}
	l.byID = make(map[string]control.Direction, len(l.Buttons))
	cells := map[[2]int]string{}
	for i, b := range l.Buttons {
		if strings.TrimSpace(b.ID) == "" {
			return fmt.Errorf("button %d: id is required", i)
		}
		if _, dup := l.byID[b.ID]; dup {
			return fmt.Errorf("button %q: duplicate id", b.ID)
		}
		dir, err := control.ParseDirection(b.Symbol)
		if err != nil {
			return fmt.Errorf("button %q: %w", b.ID, err)
		}
		if b.Row < 0 || b.Row >= gridSize || b.Col < 0 || b.Col >= gridSize {
			return fmt.Errorf("button %q: cell %d,%d outside %dx%d grid", b.ID, b.Row, b.Col, gridSize, gridSize)
		}
		cell := [2]int{b.Row, b.Col}
		if other, taken := cells[cell]; taken {
			return fmt.Errorf("button %q: cell %d,%d already used by %q", b.ID, b.Row, b.Col, other)
		}
		cells[cell] = b.ID
		l.Buttons[i].Symbol = string(dir)
		l.byID[b.ID] = dir
	}
	return nil
}

// Resolve implements control.ButtonResolver.
func (l *Layout) Resolve(buttonID string) (control.Direction, bool) {
	d, ok := l.byID[buttonID]
	return d, ok
}
