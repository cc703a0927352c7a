package policy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/robinhood-fs/rbh/internal/action"
	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/listmgr"
	"github.com/robinhood-fs/rbh/internal/workqueue"
)

// Pool drives a trigger's action over a bounded stream of Candidates,
// re-validating each against fresh attrs before acting, throttled by a
// rate limiter so a purge/archive storm can't overrun the action
// backend.
type Pool struct {
	Workers  int
	Store    listmgr.Store
	Executor action.Executor
	Limiter  *rate.Limiter
	Aborted  *atomic.Bool

	// Target, when set, bounds the run: once the ok-count or freed volume
	// reaches it, remaining candidates are drained without acting.
	Target *Threshold
}

// targetReached reports whether the run's counters satisfy Target.
func (p *Pool) targetReached(c *workqueue.Counters) bool {
	if p.Target == nil {
		return false
	}
	if p.Target.Count != nil && uint64(c.Status("ok")) >= *p.Target.Count {
		return true
	}
	if p.Target.Volume != nil && uint64(c.Feedback("volume")) >= *p.Target.Volume {
		return true
	}
	return false
}

// Revalidate re-reads an entry and reports whether it still matches
// scope (e.g. still over its rule's age/size threshold).
type Revalidate func(ctx context.Context, a *attrs.AttrSet) bool

// RunPolicy drains candidates through Workers goroutines, executing
// params against every candidate that still matches revalidate, until
// target is satisfied (checked by the caller via the returned Counters)
// or candidates is exhausted.
func (p *Pool) RunPolicy(ctx context.Context, candidates []Candidate, revalidate Revalidate, params action.Params) Counters {
	q := workqueue.New[Candidate](max(p.Workers*4, 16))
	counters := NewCounters()

	var wg sync.WaitGroup
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, q, revalidate, params, counters)
		}()
	}

	for _, c := range candidates {
		if p.Aborted != nil && p.Aborted.Load() {
			break
		}
		if p.targetReached(counters) {
			break
		}
		if err := q.Push(ctx, c); err != nil {
			break
		}
	}
	// no Close on the shared bounded queue: push one nil-id sentinel per
	// worker so each exits after draining real candidates ahead of it.
	for i := 0; i < workers; i++ {
		_ = q.Push(ctx, Candidate{})
	}
	wg.Wait()

	out := Counters{
		NbrOK:      uint64(counters.Status("ok")),
		NbrNOK:     uint64(counters.Status("failed")),
		VolOK:      uint64(counters.Feedback("volume")),
		BlocksOK:   uint64(counters.Feedback("blocks")),
		TargetedOK: uint64(counters.Status("ok")),
	}
	return out
}

func (p *Pool) worker(ctx context.Context, q *workqueue.Queue[Candidate], revalidate Revalidate, params action.Params, counters *workqueue.Counters) {
	for {
		if p.Aborted != nil && p.Aborted.Load() {
			return
		}
		c, err := q.Pop(ctx)
		if err != nil {
			return
		}
		if c.ID == nil {
			return
		}
		if p.targetReached(counters) {
			// keep draining so the producer never blocks, but stop acting.
			continue
		}

		mask := attrs.AttrMask{}
		if c.Attrs != nil {
			mask = c.Attrs.Mask
		}
		a, getErr := p.Store.Get(ctx, c.ID, mask)
		if getErr != nil {
			if errors.Is(getErr, listmgr.ErrNotFound) {
				counters.IncStatus("skipped", 1)
				continue
			}
			counters.IncStatus("failed", 1)
			continue
		}
		if revalidate != nil && !revalidate(ctx, a) {
			counters.IncStatus("skipped", 1)
			continue
		}

		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return
			}
		}

		st, fb, err := p.Executor.Execute(ctx, c.ID, a, params)
		if err != nil || st == action.StatusFailed {
			counters.IncStatus("failed", 1)
			continue
		}
		counters.IncStatus("ok", 1)
		counters.IncFeedback("volume", int64(fb.Volume))
		counters.IncFeedback("blocks", int64(fb.Blocks))
	}
}

// NewCounters returns the workqueue counter set RunPolicy reports
// through.
func NewCounters() *workqueue.Counters { return workqueue.NewCounters() }

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
