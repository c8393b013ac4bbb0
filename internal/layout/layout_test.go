package layout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/salah0eldin/autonmous-iot-car/internal/control"
)

func TestDefaultLayoutCoversAlphabet(t *testing.T) {
	l, err := Default()
	if err != nil {
		t.Fatalf("default layout: %v", err)
	}
	if len(l.Buttons) != 9 {
		t.Fatalf("unexpected button count: got %d want 9", len(l.Buttons))
	}
	seen := map[control.Direction]bool{}
	for _, b := range l.Buttons {
		d, ok := l.Resolve(b.ID)
		if !ok {
			t.Fatalf("button %q does not resolve", b.ID)
		}
		seen[d] = true
	}
	for _, d := range control.Directions() {
		if !seen[d] {
			t.Fatalf("direction %q has no button", d)
		}
	}
}

func TestDefaultLayoutKeepsFirmwareSymbols(t *testing.T) {
	l, err := Default()
	if err != nil {
		t.Fatalf("default layout: %v", err)
	}
	want := map[string]control.Direction{
		"btnJ": control.DiagonalJ, "btnF": control.Forward, "btnH": control.DiagonalH,
		"btnL": control.Left, "btnS": control.Stop, "btnR": control.Right,
		"btnI": control.DiagonalI, "btnB": control.Back, "btnG": control.DiagonalG,
	}
	for id, dir := range want {
		if got, _ := l.Resolve(id); got != dir {
			t.Fatalf("button %s: got %q want %q", id, got, dir)
		}
	}
	if _, ok := l.Resolve("btnX"); ok {
		t.Fatalf("unknown button must not resolve")
	}
}

func TestParseRejectsBadLayouts(t *testing.T) {
	cases := map[string]string{
		"empty":        "buttons: []",
		"bad symbol":   "buttons: [{id: a, symbol: X, row: 0, col: 0}]",
		"duplicate id": "buttons: [{id: a, symbol: F, row: 0, col: 0}, {id: a, symbol: B, row: 0, col: 1}]",
		"shared cell":  "buttons: [{id: a, symbol: F, row: 0, col: 0}, {id: b, symbol: B, row: 0, col: 0}]",
		"outside grid": "buttons: [{id: a, symbol: F, row: 3, col: 0}]",
		"missing id":   "buttons: [{symbol: F, row: 0, col: 0}]",
		"invalid yaml": "buttons: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	doc := "buttons:\n  - {id: go, symbol: f, row: 1, col: 1}\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	l, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d, ok := l.Resolve("go"); !ok || d != control.Forward {
		t.Fatalf("unexpected resolve: %q %v", d, ok)
	}
	if l.Buttons[0].Symbol != "F" {
		t.Fatalf("symbol should be normalised, got %q", l.Buttons[0].Symbol)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read layout") {
		t.Fatalf("expected read error, got %v", err)
	}
}
