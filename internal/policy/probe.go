package policy

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/listmgr"
)

// FiringTarget is one over-threshold target a trigger check produced:
// a filesystem path, an OST/pool name, or a uid/gid, together with how
// much work is needed to bring it back under the low watermark.
type FiringTarget struct {
	OptArg     string
	WorkLimit  Threshold // how much must be freed/purged to reach LW
	UsedVolume uint64
	UsedCount  uint64
}

// probe evaluates trig's target(s) and returns the targets currently
// over HW, each paired with the work needed to bring it back under LW.
func probe(ctx context.Context, store listmgr.Store, trig Trigger) (fire bool, targets []FiringTarget, err error) {
	switch trig.Target {
	case TargetAlways:
		return true, []FiringTarget{{OptArg: "always"}}, nil
	case TargetFS:
		return probeStatfs(trig.Names, trig.HW, trig.LW)
	case TargetUser:
		return probeReport(ctx, store, attrs.ATTR_uid, trig.HW, trig.LW)
	case TargetGroup:
		return probeReport(ctx, store, attrs.ATTR_gid, trig.HW, trig.LW)
	default:
		return false, nil, fmt.Errorf("policy: target kind %s not supported by this build (see internal/lustre)", trig.Target)
	}
}

// probeStatfs checks one or more mount paths against HW, computing the
// blocks-to-free needed to reach LW.
func probeStatfs(paths []string, hw, lw Threshold) (bool, []FiringTarget, error) {
	var targets []FiringTarget
	for _, path := range paths {
		var st unix.Statfs_t
		if err := unix.Statfs(path, &st); err != nil {
			return false, nil, fmt.Errorf("policy: statfs %s: %w", path, err)
		}
		total := st.Blocks
		free := st.Bfree
		used := total - free
		var usedPct float64
		if total > 0 {
			usedPct = float64(used) / float64(total) * 100
		}
		if hw.Percent == nil || usedPct < *hw.Percent {
			continue
		}
		var workLimit uint64
		if lw.Percent != nil {
			lwBlocks := uint64(*lw.Percent / 100 * float64(total))
			if used > lwBlocks {
				workLimit = used - lwBlocks
			}
		}
		blockSize := uint64(st.Bsize)
		targets = append(targets, FiringTarget{
			OptArg:     path,
			UsedVolume: used * blockSize,
			WorkLimit:  Threshold{Volume: ptr(workLimit * blockSize)},
		})
	}
	return len(targets) > 0, targets, nil
}

// probeReport checks per-uid/gid usage via an accounting report,
// returning every group whose summed blocks exceed hw.Count.
func probeReport(ctx context.Context, store listmgr.Store, groupBy attrs.AttrIndex, hw, lw Threshold) (bool, []FiringTarget, error) {
	if hw.Count == nil {
		return false, nil, nil
	}
	fields := []listmgr.ReportField{
		{Attr: groupBy, Op: listmgr.AggGroupBy},
		{Attr: attrs.ATTR_blocks, Op: listmgr.AggSum,
			Having: &listmgr.FilterClause{Attr: attrs.ATTR_blocks, Op: listmgr.OpGt, Value: attrs.BiguintValue(*hw.Count)}},
	}
	it, err := store.Report(ctx, fields, nil, listmgr.Filter{}, listmgr.ReportOpts{})
	if err != nil {
		return false, nil, err
	}
	defer it.Close()

	var targets []FiringTarget
	for {
		row, err := it.GetNext(ctx)
		if err != nil {
			break
		}
		if len(row.Values) < 2 {
			continue
		}
		used := row.Values[1].Uint
		var workLimit uint64
		if lw.Count != nil && used > *lw.Count {
			workLimit = used - *lw.Count
		}
		targets = append(targets, FiringTarget{
			OptArg:     valueString(row.Values[0]),
			UsedCount:  used,
			WorkLimit:  Threshold{Count: ptr(workLimit)},
		})
	}
	return len(targets) > 0, targets, nil
}

func ptr[T any](v T) *T { return &v }

func valueString(v attrs.Value) string {
	switch v.Kind {
	case attrs.KindUint, attrs.KindBiguint:
		return fmt.Sprint(v.Uint)
	case attrs.KindInt, attrs.KindBigint:
		return fmt.Sprint(v.Int)
	default:
		return v.Str
	}
}
