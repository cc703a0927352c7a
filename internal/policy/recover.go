package policy

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/listmgr"
	"github.com/robinhood-fs/rbh/internal/statusmgr"
)

// recoverOutstandingLoop runs recoverOutstanding at startup and then
// every s.CheckActionStatusDelay until ctx is cancelled.
func (s *Scheduler) recoverOutstandingLoop(ctx context.Context) {
	s.recoverOutstanding(ctx)
	ticker := time.NewTicker(s.CheckActionStatusDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recoverOutstanding(ctx)
		}
	}
}

// recoverOutstanding scans every trigger that declares a
// StatusCurrentAttr (e.g. "archive_running") for entries still in that
// state, re-queries their real status through the registered status
// manager, and clears the stale marker once the action has finished. A
// single entry's failure does not abort the scan: this is best-effort
// reconciliation, not a correctness requirement.
func (s *Scheduler) recoverOutstanding(ctx context.Context) {
	for _, trig := range s.Triggers {
		if !trig.HasStatusCurrent {
			continue
		}
		mgr, ok := s.mgrCache.Get("hsm_archive")
		if !ok {
			built, err := statusmgr.New("hsm_archive", nil)
			if err != nil {
				continue
			}
			s.mgrCache.Set("hsm_archive", built)
			mgr = built
		}
		s.recoverTrigger(ctx, trig, mgr)
	}
}

func (s *Scheduler) recoverTrigger(ctx context.Context, trig Trigger, mgr statusmgr.Manager) {
	filter := listmgr.Filter{}
	it, err := s.Store.NewIterator(ctx, filter, listmgr.IterOpts{AttrMask: attrs.MaskOf(trig.StatusCurrentAttr)})
	if err != nil {
		log.Warn().Err(err).Str("trigger", trig.Name).Msg("policy: outstanding-action scan failed")
		return
	}
	defer it.Close()

	for {
		id, a, err := it.GetNext(ctx)
		if err != nil {
			if !errors.Is(err, listmgr.ErrEndOfList) {
				log.Warn().Err(err).Str("trigger", trig.Name).Msg("policy: outstanding-action iterator error")
			}
			return
		}
		if cur, ok := a.Get(trig.StatusCurrentAttr); !ok || cur.Str != "archive_running" {
			continue
		}
		status, err := mgr.Compute(ctx, id, a)
		if err != nil {
			continue
		}
		if status == "archive_running" {
			continue
		}
		update := attrs.NewAttrSet()
		update.Set(trig.StatusCurrentAttr, attrs.StrValue(status))
		_ = s.Store.Update(ctx, id, update)
	}
}
