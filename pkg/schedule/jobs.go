package schedule

import (
	"context"
	"log"
	"time"
)

// SessionStore prunes idle browser sessions
type SessionStore interface {
	PruneSessions(cutoff time.Time) (int64, error)
}

// RunStore prunes stored decode runs
type RunStore interface {
	PruneRuns(cutoff time.Time) (int64, error)
}

// SessionPruner deletes sessions idle for longer than TTL
type SessionPruner struct {
	Store  SessionStore
	TTL    time.Duration
	Logger *log.Logger
	Now    func() time.Time
}

// Name implements Job
func (p *SessionPruner) Name() string { return "prune-sessions" }

// Run implements Job
func (p *SessionPruner) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := p.Store.PruneSessions(now(p.Now).Add(-p.TTL))
	if err != nil {
		return err
	}
	if n > 0 && p.Logger != nil {
		p.Logger.Printf("Pruned %d idle sessions", n)
	}
	return nil
}

// RunRetention deletes runs older than MaxAge. A zero MaxAge keeps everything.
type RunRetention struct {
	Store  RunStore
	MaxAge time.Duration
	Logger *log.Logger
	Now    func() time.Time
}

// Name implements Job
func (p *RunRetention) Name() string { return "prune-runs" }

// Run implements Job
func (p *RunRetention) Run(ctx context.Context) error {
	if p.MaxAge <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := p.Store.PruneRuns(now(p.Now).Add(-p.MaxAge))
	if err != nil {
		return err
	}
	if n > 0 && p.Logger != nil {
		p.Logger.Printf("Pruned %d runs older than %s", n, p.MaxAge)
	}
	return nil
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn()
	}
	return time.Now()
}
