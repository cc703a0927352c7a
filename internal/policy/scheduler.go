package policy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"github.com/rs/zerolog/log"

	"github.com/robinhood-fs/rbh/internal/action"
	"github.com/robinhood-fs/rbh/internal/alert"
	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/cache"
	"github.com/robinhood-fs/rbh/internal/listmgr"
	"github.com/robinhood-fs/rbh/internal/statusmgr"
)

// Scheduler runs every configured Trigger's Checker goroutine and owns
// the shared worker Pool each trigger's RunPolicy call drains into.
type Scheduler struct {
	Store    listmgr.Store
	Executor action.Executor
	Triggers []Trigger
	Workers  int
	RateLimit float64

	// Alerter, when set, is told about high-watermark crossings and runs
	// that could not reach their work target.
	Alerter alert.Alerter

	CheckActionStatusDelay time.Duration

	// Maintenance-mode parameters: age-based criteria decay inside the
	// pre-window leading up to the persisted next_maint deadline.
	PreMaintWindow     time.Duration
	MaintMinApplyDelay time.Duration

	Aborted atomic.Bool

	mu    sync.Mutex
	infos map[string]*TriggerInfo

	// mgrCache memoizes resolved status.Manager instances so the
	// outstanding-action recovery loop doesn't pay a registry lookup on
	// every tick for every trigger.
	mgrCache *cache.Cache[statusmgr.Manager]
}

func NewScheduler(store listmgr.Store, exec action.Executor, triggers []Trigger, workers int, rateLimit float64) *Scheduler {
	return &Scheduler{
		Store:     store,
		Executor:  exec,
		Triggers:  triggers,
		Workers:   workers,
		RateLimit: rateLimit,
		infos:     make(map[string]*TriggerInfo),
		mgrCache:  cache.New[statusmgr.Manager](10*time.Minute, 32),
	}
}

// Info returns a copy of the named trigger's current TriggerInfo.
func (s *Scheduler) Info(name string) TriggerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.infos[name]; ok {
		return *info
	}
	return TriggerInfo{Status: NotChecked}
}

func (s *Scheduler) setInfo(name string, fn func(*TriggerInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[name]
	if !ok {
		info = &TriggerInfo{Status: NotChecked}
		s.infos[name] = info
	}
	fn(info)
}

// Run starts one Checker goroutine per trigger on a shared gcd-derived
// tick, plus the outstanding-action recovery loop, and blocks until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.mgrCache.Stop()

	var intervals []time.Duration
	for _, t := range s.Triggers {
		intervals = append(intervals, t.CheckInterval)
	}
	tick := gcdInterval(intervals)

	var wg sync.WaitGroup
	lastCheck := make([]time.Time, len(s.Triggers))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	if s.CheckActionStatusDelay > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.recoverOutstandingLoop(ctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case now := <-ticker.C:
			if s.Aborted.Load() {
				continue
			}
			for i := range s.Triggers {
				if lastCheck[i].IsZero() || now.Sub(lastCheck[i]) >= s.Triggers[i].CheckInterval {
					lastCheck[i] = now
					trig := s.Triggers[i]
					wg.Add(1)
					go func() {
						defer wg.Done()
						s.checkTrigger(ctx, trig)
					}()
				}
			}
		}
	}
}

func (s *Scheduler) checkTrigger(ctx context.Context, trig Trigger) {
	s.setInfo(trig.Name, func(i *TriggerInfo) { i.Status = BeingChecked; i.LastCheck = time.Now() })

	fire, targets, err := probe(ctx, s.Store, trig)
	if err != nil {
		s.setInfo(trig.Name, func(i *TriggerInfo) { i.Status = CheckError })
		log.Error().Err(err).Str("trigger", trig.Name).Msg("policy: check failed")
		return
	}
	if !fire {
		s.setInfo(trig.Name, func(i *TriggerInfo) { i.Status = OK })
		return
	}

	s.setInfo(trig.Name, func(i *TriggerInfo) { i.Status = Running })

	if trig.AlertHW && s.Alerter != nil {
		s.Alerter.Raise("high watermark crossed",
			"trigger %s fired on %d target(s)", trig.Name, len(targets))
	}

	modifier := s.maintModifier(ctx)
	revalidate := s.revalidateFunc(trig, modifier)
	limiter := rate.NewLimiter(rate.Limit(s.RateLimit), max(int(s.RateLimit), 1))

	var totals Counters
	allListed := false
	allReached := true
	for ti := range targets {
		target := targets[ti]
		if s.Aborted.Load() {
			s.setInfo(trig.Name, func(i *TriggerInfo) { i.Status = Aborted })
			return
		}

		candidates, err := s.listCandidates(ctx, trig, target)
		if err != nil {
			s.setInfo(trig.Name, func(i *TriggerInfo) { i.Status = CheckError })
			return
		}
		if len(candidates) == 0 {
			allReached = false
			continue
		}
		allListed = true

		pool := &Pool{
			Workers: s.Workers, Store: s.Store, Executor: s.Executor,
			Limiter: limiter, Aborted: &s.Aborted, Target: &target.WorkLimit,
		}
		ctr := pool.RunPolicy(ctx, candidates, revalidate, trig.Action.toActionParams(target))
		totals.NbrOK += ctr.NbrOK
		totals.NbrNOK += ctr.NbrNOK
		totals.VolOK += ctr.VolOK
		totals.BlocksOK += ctr.BlocksOK
		totals.TargetedOK += ctr.TargetedOK
		if !workLimitReached(target.WorkLimit, ctr) {
			allReached = false
		}
	}

	final := OK
	switch {
	case !allListed:
		final = NoList
	case !allReached:
		final = NotEnough
	}
	if final == NotEnough && trig.AlertLW && s.Alerter != nil {
		s.Alerter.Raise("policy run below target",
			"trigger %s finished with %d action(s), short of its work limit", trig.Name, totals.NbrOK)
	}

	s.setInfo(trig.Name, func(i *TriggerInfo) {
		i.Status = final
		i.LastCtr = totals
		i.TotalCtr.NbrOK += totals.NbrOK
		i.TotalCtr.NbrNOK += totals.NbrNOK
		i.TotalCtr.VolOK += totals.VolOK
		i.TotalCtr.BlocksOK += totals.BlocksOK
		i.TotalCtr.TargetedOK += totals.TargetedOK
	})

	if s.Store != nil {
		_ = s.Store.SetVar(ctx, varStatus(trig.Name), final.String())
		_ = s.Store.SetVar(ctx, varLastCtr(trig.Name), fmt.Sprint(totals.NbrOK))
		_ = s.Store.SetVar(ctx, varTotalCtr(trig.Name), fmt.Sprint(s.Info(trig.Name).TotalCtr.NbrOK))
	}
}

// workLimitReached reports whether one target's run counters satisfy its
// work limit. A target with no limit is trivially satisfied.
func workLimitReached(limit Threshold, ctr Counters) bool {
	if limit.Count != nil && ctr.NbrOK < *limit.Count {
		return false
	}
	if limit.Volume != nil && ctr.VolOK < *limit.Volume {
		return false
	}
	return true
}

// maintModifier reads the persisted next_maint deadline (unix seconds)
// and converts it to the current time-modifier factor; 1.0 when no
// maintenance is scheduled or maintenance mode is not configured.
func (s *Scheduler) maintModifier(ctx context.Context) float64 {
	if s.Store == nil || s.PreMaintWindow <= 0 {
		return 1.0
	}
	v, err := s.Store.GetVar(ctx, "next_maint")
	if err != nil || v == "" {
		return 1.0
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 1.0
	}
	return timeModifier(time.Now(), time.Unix(secs, 0), s.PreMaintWindow, s.MaintMinApplyDelay)
}

// revalidateFunc builds the per-candidate re-check a pool worker runs
// against freshly-read attrs: the entry must still satisfy the trigger's
// age criterion, with its age scaled by the maintenance modifier so
// entries become eligible earlier as the deadline approaches.
func (s *Scheduler) revalidateFunc(trig Trigger, modifier float64) Revalidate {
	if trig.MinAge <= 0 {
		return nil
	}
	return func(ctx context.Context, a *attrs.AttrSet) bool {
		v, ok := a.Get(attrs.ATTR_last_access)
		if !ok {
			v, ok = a.Get(attrs.ATTR_last_mod)
		}
		if !ok {
			return true
		}
		age := time.Since(time.Unix(v.Int, 0))
		return effectiveAge(age, modifier) >= trig.MinAge
	}
}

// listCandidates opens an iterator over rule ∩ scope ∩ target, sorted by
// the trigger's configured LRU attribute, and materializes it into a
// Candidate slice (bounded by the work limit the target reported).
func (s *Scheduler) listCandidates(ctx context.Context, trig Trigger, target FiringTarget) ([]Candidate, error) {
	filter := listmgr.Filter{}
	opts := listmgr.IterOpts{AttrMask: trig.RuleFilter}
	if trig.SortAttr != 0 {
		opts.Sort = []listmgr.SortSpec{{Attr: trig.SortAttr}}
	}
	it, err := s.Store.NewIterator(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Candidate
	for {
		id, a, err := it.GetNext(ctx)
		if err != nil {
			if errors.Is(err, listmgr.ErrEndOfList) {
				break
			}
			return out, err
		}
		out = append(out, Candidate{ID: id, Attrs: a})
	}
	return out, nil
}

// toActionParams builds one target's action invocation, stamping the
// target's name/id as an extra template arg.
func (p ActionParams) toActionParams(target FiringTarget) action.Params {
	args := make(map[string]string, len(p.Args)+1)
	for k, v := range p.Args {
		args[k] = v
	}
	args["target"] = target.OptArg
	return action.Params{Command: p.Command, Args: args}
}
