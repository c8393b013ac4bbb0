package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Repo struct {
	db *gorm.DB
}

// Open connects to the journal database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch driver {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", driver)
	}
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Insert(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(e).Error
}

type Page struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// List returns entries newest first. An empty sessionID lists every session.
func (r *Repo) List(ctx context.Context, sessionID string, limit int, cursor *Cursor) (Page, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	var exprs []clause.Expression
	if sessionID != "" {
		exprs = append(exprs, clause.Eq{Column: clause.Column{Name: "session_id"}, Value: sessionID})
	}
	if cursor != nil {
		exprs = append(exprs, clause.Or(
			clause.Lt{Column: clause.Column{Name: "sent_at"}, Value: cursor.SentAt},
			clause.And(
				clause.Eq{Column: clause.Column{Name: "sent_at"}, Value: cursor.SentAt},
				clause.Lt{Column: clause.Column{Name: "id"}, Value: cursor.ID},
			),
		))
	}

	order := clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "sent_at"}, Desc: true},
		{Column: clause.Column{Name: "id"}, Desc: true},
	}}

	q := r.db.WithContext(ctx).Clauses(order).Limit(limit + 1)
	if len(exprs) > 0 {
		q = q.Clauses(clause.Where{Exprs: exprs})
	}
	var rows []Entry
	if err := q.Find(&rows).Error; err != nil {
		return Page{}, err
	}

	out := Page{Entries: rows}
	if len(rows) > limit {
		last := rows[limit-1]
		out.Entries = rows[:limit]
		out.NextCursor = EncodeCursor(Cursor{SentAt: last.SentAt, ID: last.ID})
	}
	return out, nil
}

// PruneBefore deletes entries sent before cutoff and returns how many went.
func (r *Repo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("sent_at < ?", cutoff).Delete(&Entry{})
	return res.RowsAffected, res.Error
}
