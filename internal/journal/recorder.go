package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/salah0eldin/autonmous-iot-car/internal/control"
)

// Recorder is a control.Sender that writes each command to the journal on
// a background worker. When the buffer is full the entry is dropped rather
// than holding up the session.
type Recorder struct {
	repo  *Repo
	queue chan Entry
	now   func() time.Time

	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
	mu        sync.RWMutex
}

func NewRecorder(repo *Repo, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan Entry, buffer),
		now:    func() time.Time { return time.Now().UTC() },
		closed: make(chan struct{}),
	}
}

func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for e := range r.queue {
			e := e
			if err := r.repo.Insert(ctx, &e); err != nil {
				slog.Warn("journal insert failed", "error", err)
			}
		}
	}()
}

// Send implements control.Sender.
func (r *Recorder) Send(cmd control.Command) {
	params, _ := json.Marshal(map[string]string{cmd.Param: cmd.Value})
	e := Entry{
		ID:        uuid.New(),
		SessionID: cmd.Session,
		SentAt:    r.now(),
		Kind:      string(cmd.Kind),
		Target:    cmd.String(),
		Params:    params,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	select {
	case <-r.closed:
		return
	default:
	}
	select {
	case r.queue <- e:
	default:
		slog.Warn("journal buffer full, entry dropped", "target", e.Target)
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		close(r.closed)
		close(r.queue)
		r.mu.Unlock()
	})
	r.wg.Wait()
}

// Pruner deletes journal entries older than the retention window on a cron
// schedule.
type Pruner struct {
	repo      *Repo
	retention time.Duration
	cron      *cron.Cron
}

func NewPruner(repo *Repo, retention time.Duration) *Pruner {
	return &Pruner{repo: repo, retention: retention, cron: cron.New()}
}

func (p *Pruner) Start(spec string) error {
	if _, err := p.cron.AddFunc(spec, func() { p.RunOnce(context.Background()) }); err != nil {
		return err
	}
	p.cron.Start()
	slog.Info("journal pruning scheduled", "schedule", spec, "retention", p.retention)
	return nil
}

func (p *Pruner) RunOnce(ctx context.Context) int64 {
	cutoff := time.Now().UTC().Add(-p.retention)
	n, err := p.repo.PruneBefore(ctx, cutoff)
	if err != nil {
		slog.Warn("journal prune failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("journal pruned", "deleted", n, "cutoff", cutoff)
	}
	return n
}

func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}
