package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
	"github.com/robinhood-fs/rbh/internal/listmgr"
)

// NextInterval linearly interpolates the sleep between scans from
// minInterval to maxInterval using the most recently observed filesystem
// usage percent as the blending factor: 100% usage selects minInterval,
// 0% selects maxInterval. An incomplete previous scan overrides the
// interpolation entirely and returns retryDelay.
func NextInterval(minInterval, maxInterval time.Duration, usagePercent float64, lastIncomplete bool, retryDelay time.Duration) time.Duration {
	if lastIncomplete {
		return retryDelay
	}
	if usagePercent < 0 {
		usagePercent = 0
	}
	if usagePercent > 100 {
		usagePercent = 100
	}
	span := float64(maxInterval - minInterval)
	return maxInterval - time.Duration(usagePercent/100*span)
}

// Persisted variable names in the listmgr vars table, matching spec.md §6.
const (
	VarLastScanStartTime  = "last_scan_start_time"
	VarLastScanEndTime    = "last_scan_end_time"
	VarLastScanStatus     = "last_scan_status"
	VarLastScanNbThreads  = "last_scan_nb_threads"
)

// RecordScanStart persists the bookkeeping a scan stamps at launch.
func RecordScanStart(ctx context.Context, store listmgr.Store, start time.Time, workers int) error {
	if err := store.SetVar(ctx, VarLastScanStartTime, fmt.Sprint(start.UnixNano())); err != nil {
		return err
	}
	return store.SetVar(ctx, VarLastScanNbThreads, fmt.Sprint(workers))
}

// RecordScanEnd persists the end-of-scan bookkeeping and, for a complete
// scan, drives the garbage-collection pass over everything not
// re-stamped since scanStart: entries are soft-removed after a full scan,
// only name rows are removed after a partial one.
func RecordScanEnd(ctx context.Context, store listmgr.Store, scanStart time.Time, status string, partial bool, onSoftRemoved func(id ids.ID)) error {
	if err := store.SetVar(ctx, VarLastScanEndTime, fmt.Sprint(time.Now().UnixNano())); err != nil {
		return err
	}
	if err := store.SetVar(ctx, VarLastScanStatus, status); err != nil {
		return err
	}
	if status != "complete" {
		return nil
	}

	if partial {
		// Partial (sub-tree) scans only garbage-collect names: an entry
		// may simply have moved elsewhere in the tree, so it must not be
		// soft-removed on the strength of this scan alone. Filtering on
		// path_update keeps the whole operation in the names table.
		nameFilter := listmgr.Filter{Clauses: []listmgr.FilterClause{
			{Attr: attrs.ATTR_path_update, Op: listmgr.OpLt, Value: attrs.BigintValue(scanStart.UnixNano())},
		}}
		return store.MassRemove(ctx, nameFilter, false, 0, nil)
	}
	filter := listmgr.Filter{Clauses: []listmgr.FilterClause{
		{Attr: attrs.ATTR_md_update, Op: listmgr.OpLt, Value: attrs.BigintValue(scanStart.UnixNano())},
	}}
	return store.MassRemove(ctx, filter, true, time.Now().UnixNano(), func(id ids.ID) {
		if onSoftRemoved != nil {
			onSoftRemoved(id)
		}
	})
}
