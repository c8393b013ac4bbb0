package journal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/salah0eldin/autonmous-iot-car/internal/control"
)

func openRepo(t *testing.T) *Repo {
	t.Helper()
	// Unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:journal_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestListNewestFirstWithCursor(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := &Entry{SessionID: "s1", SentAt: base.Add(time.Duration(i) * time.Second), Kind: "direction", Target: "/cmd?dir=F"}
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := repo.Insert(ctx, &Entry{SessionID: "s2", SentAt: base, Kind: "car_speed", Target: "/speed?car=1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	page, err := repo.List(ctx, "s1", 3, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Entries) != 3 || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %d entries cursor %q", len(page.Entries), page.NextCursor)
	}
	if !page.Entries[0].SentAt.Equal(base.Add(4 * time.Second)) {
		t.Fatalf("expected newest first, got %v", page.Entries[0].SentAt)
	}

	cur, err := DecodeCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	page2, err := repo.List(ctx, "s1", 3, cur)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page2.Entries) != 2 || page2.NextCursor != "" {
		t.Fatalf("unexpected second page: %d entries cursor %q", len(page2.Entries), page2.NextCursor)
	}

	all, err := repo.List(ctx, "", 100, nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all.Entries) != 6 {
		t.Fatalf("expected 6 entries across sessions, got %d", len(all.Entries))
	}
}

func TestPruneBefore(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_ = repo.Insert(ctx, &Entry{SessionID: "s", SentAt: now.Add(-48 * time.Hour), Kind: "direction"})
	_ = repo.Insert(ctx, &Entry{SessionID: "s", SentAt: now, Kind: "direction"})

	p := NewPruner(repo, 24*time.Hour)
	if n := p.RunOnce(ctx); n != 1 {
		t.Fatalf("unexpected pruned count: got %d want 1", n)
	}
	page, err := repo.List(ctx, "s", 10, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", len(page.Entries))
	}
}

func TestPrunerRejectsBadSchedule(t *testing.T) {
	p := NewPruner(openRepo(t), time.Hour)
	if err := p.Start("not a schedule"); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestRecorderWritesCommands(t *testing.T) {
	repo := openRepo(t)
	rec := NewRecorder(repo, 8)
	rec.Start(context.Background())

	cmd := control.CarSpeedCommand(37)
	cmd.Session = "sess-1"
	rec.Send(cmd)
	rec.Send(control.DirectionCommand(control.Stop))
	rec.Close()

	// Sends after close are dropped silently.
	rec.Send(control.ManualHomeCommand())

	page, err := repo.List(context.Background(), "sess-1", 10, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("expected 1 entry for session, got %d", len(page.Entries))
	}
	e := page.Entries[0]
	if e.Kind != "car_speed" || e.Target != "/speed?car=37" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if string(e.Params) != `{"car":"37"}` {
		t.Fatalf("unexpected params: %s", e.Params)
	}
}

func TestCursorRoundTripRejectsGarbage(t *testing.T) {
	c := Cursor{SentAt: time.Date(2025, 3, 1, 0, 0, 0, 5, time.UTC), ID: uuid.New()}
	got, err := DecodeCursor(EncodeCursor(c))
	if err != nil || !got.SentAt.Equal(c.SentAt) || got.ID != c.ID {
		t.Fatalf("round trip: got %+v err %v", got, err)
	}
	if got, err := DecodeCursor(""); got != nil || err != nil {
		t.Fatalf("empty cursor should be nil, got %+v %v", got, err)
	}
	if _, err := DecodeCursor("%%%"); err == nil {
		t.Fatalf("expected error for garbage cursor")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mongo", ""); err == nil {
		t.Fatalf("expected error")
	}
}
