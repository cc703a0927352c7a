package statusmgr

import (
	"context"
	"time"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// Lifecycle classifies an entry as new/synced/stale purely from how long
// ago its database row was last stamped (MdUpdate).
type Lifecycle struct {
	StaleAfter time.Duration
}

// NewLifecycle parses staleAfter (a time.ParseDuration string, "" for
// the default of 1h) into a Lifecycle manager.
func NewLifecycle(staleAfter string) *Lifecycle {
	d := time.Hour
	if staleAfter != "" {
		if parsed, err := time.ParseDuration(staleAfter); err == nil {
			d = parsed
		}
	}
	return &Lifecycle{StaleAfter: d}
}

func (l *Lifecycle) Name() string { return "lifecycle" }

func (l *Lifecycle) Scope() attrs.AttrMask {
	return attrs.MaskOf(attrs.ATTR_md_update)
}

func (l *Lifecycle) Compute(ctx context.Context, id ids.ID, a *attrs.AttrSet) (string, error) {
	v, ok := a.Get(attrs.ATTR_md_update)
	if !ok {
		return "new", nil
	}
	age := time.Since(time.Unix(0, v.Int))
	if age > l.StaleAfter {
		return "stale", nil
	}
	return "synced", nil
}
