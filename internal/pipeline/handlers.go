package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
	"github.com/robinhood-fs/rbh/internal/listmgr"
)

// Resolvers bundles the callbacks DefaultStages needs beyond the Store:
// an op submitted at GET_ID without an id needs a way to turn
// (parent, name) into an ids.ID. rbh scan passes an empty Resolvers
// (internal/lustre has only its NotSupported stub), and its scanner and
// changelog ops already carry ids and start at GET_INFO_DB.
type Resolvers struct {
	ResolveID func(ctx context.Context, parent ids.ID, name string) (ids.ID, error)
}

// DefaultStages wires the production HandlerFuncs described by spec.md
// §4.3 against store and resolvers, with the concurrency/batching shape
// called for by each stage.
func DefaultStages(store listmgr.Store, res Resolvers, queueDepth, batchSize, workers int) [numStages]StageDef {
	var defs [numStages]StageDef
	defs[GetID] = StageDef{
		Stage:       GetID,
		Parallelism: Parallel,
		Workers:     workers,
		QueueDepth:  queueDepth,
		Handler:     handleGetID(res),
	}
	defs[GetInfoDB] = StageDef{
		Stage:        GetInfoDB,
		Parallelism:  Parallel,
		Workers:      workers,
		IDConstraint: true,
		QueueDepth:   queueDepth,
		Handler:      handleGetInfoDB(store),
	}
	defs[GetInfoFS] = StageDef{
		Stage:       GetInfoFS,
		Parallelism: Parallel,
		Workers:     workers,
		QueueDepth:  queueDepth,
		Handler:     handleGetInfoFS,
	}
	defs[ReportDiff] = StageDef{
		Stage:       ReportDiff,
		Parallelism: Sequential,
		QueueDepth:  queueDepth,
		Handler:     handleReportDiff,
	}
	defs[Apply] = StageDef{
		Stage:        Apply,
		Parallelism:  Parallel,
		Workers:      workers,
		Batchable:    true,
		BatchSize:    batchSize,
		QueueDepth:   queueDepth,
		BatchHandler: handleApplyBatch(store),
	}
	defs[ReportRM] = StageDef{
		Stage:       ReportRM,
		Parallelism: Sequential,
		QueueDepth:  queueDepth,
		Handler:     handleReportRM(store),
	}
	return defs
}

// handleGetID resolves a path-only changelog op to a stable id, or
// passes a scanner-sourced op straight through (it already has one).
func handleGetID(res Resolvers) HandlerFunc {
	return func(ctx context.Context, p *Pipeline, op *Op) {
		if op.ID != nil {
			p.Ack(op, GetInfoDB, false)
			return
		}
		if res.ResolveID == nil {
			p.Ack(op, Terminate, true)
			return
		}
		id, err := res.ResolveID(ctx, op.Parent, op.Name)
		if err != nil {
			op.Err = err
			p.Ack(op, Terminate, true)
			return
		}
		op.ID = id
		p.Ack(op, GetInfoDB, false)
	}
}

// handleGetInfoDB loads the entry's current database attrs, including
// the generated fullpath GET_INFO_FS needs to stat the live filesystem.
func handleGetInfoDB(store listmgr.Store) HandlerFunc {
	mask := attrs.MaskOf(
		attrs.ATTR_size, attrs.ATTR_blocks, attrs.ATTR_mode, attrs.ATTR_type,
		attrs.ATTR_uid, attrs.ATTR_gid, attrs.ATTR_last_access, attrs.ATTR_last_mod,
		attrs.ATTR_nlink, attrs.ATTR_name, attrs.ATTR_parent_id, attrs.ATTR_fullpath,
		attrs.ATTR_md_update,
	)
	return func(ctx context.Context, p *Pipeline, op *Op) {
		want := mask
		if !op.DBAttrNeed.IsNull() {
			want = attrs.Or(mask, op.DBAttrNeed)
		}
		a, err := store.Get(ctx, op.ID, want)
		if err != nil {
			if _, ok := asListmgrNotFound(err); ok {
				op.DBAttrs = nil
				op.DBOpType = listmgr.OpInsert
				p.Ack(op, GetInfoFS, false)
				return
			}
			op.Err = err
			p.Ack(op, Terminate, true)
			return
		}
		op.DBAttrs = a
		p.Ack(op, GetInfoFS, false)
	}
}

func asListmgrNotFound(err error) (*listmgr.Error, bool) {
	var lmErr *listmgr.Error
	if errors.As(err, &lmErr) && lmErr.Code == listmgr.NotFound {
		return lmErr, true
	}
	return nil, false
}

// handleGetInfoFS refreshes an entry's live filesystem attrs by Lstat-ing
// the path GET_INFO_DB resolved. ENOENT/ESTALE silently drops the op: the
// entry vanished between the changelog/scan event and now.
func handleGetInfoFS(ctx context.Context, p *Pipeline, op *Op) {
	if op.Source == SourceScan && op.FSAttrs != nil {
		// the scanner already stat'd this entry while walking; GET_INFO_FS
		// only needs to re-stat a changelog-sourced op.
		p.Ack(op, ReportDiff, false)
		return
	}
	var path string
	if op.DBAttrs != nil {
		if v, ok := op.DBAttrs.Get(attrs.ATTR_fullpath); ok {
			path = v.Str
		}
	}
	if path == "" {
		op.Err = errors.New("pipeline: no fullpath to stat")
		p.Ack(op, Terminate, true)
		return
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ESTALE) {
			// entry vanished between the event and now; the next scan's GC
			// pass (or an unlink changelog record) will reclaim its row.
			p.Ack(op, Terminate, true)
			return
		}
		op.Err = err
		p.Ack(op, Terminate, true)
		return
	}
	op.FSAttrs = statToAttrs(&st, path)
	p.Ack(op, ReportDiff, false)
}

func statToAttrs(st *unix.Stat_t, path string) *attrs.AttrSet {
	a := attrs.NewAttrSet()
	typ := attrs.TypeFile
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		typ = attrs.TypeDir
	case unix.S_IFLNK:
		typ = attrs.TypeSymlink
	case unix.S_IFREG:
		typ = attrs.TypeFile
	default:
		typ = attrs.TypeSpecial
	}
	a.Set(attrs.ATTR_type, attrs.StrValue(string(typ)))
	a.Set(attrs.ATTR_size, attrs.UintValue(uint64(st.Size)))
	a.Set(attrs.ATTR_blocks, attrs.UintValue(uint64(st.Blocks)))
	a.Set(attrs.ATTR_mode, attrs.UintValue(uint64(st.Mode)))
	a.Set(attrs.ATTR_uid, attrs.UintValue(uint64(st.Uid)))
	a.Set(attrs.ATTR_gid, attrs.UintValue(uint64(st.Gid)))
	a.Set(attrs.ATTR_last_access, attrs.BigintValue(st.Atim.Sec))
	a.Set(attrs.ATTR_last_mod, attrs.BigintValue(st.Mtim.Sec))
	a.Set(attrs.ATTR_nlink, attrs.UintValue(uint64(st.Nlink)))
	a.Set(attrs.ATTR_md_update, attrs.BigintValue(time.Now().UnixNano()))
	if typ == attrs.TypeSymlink {
		if target, err := os.Readlink(path); err == nil {
			a.Set(attrs.ATTR_link, attrs.StrValue(target))
		}
	}
	return a
}

// handleReportDiff narrows FSAttrs to the fields that actually changed
// against DBAttrs and picks the DBOpType APPLY must run.
func handleReportDiff(ctx context.Context, p *Pipeline, op *Op) {
	if op.DBOpType == listmgr.OpInsert {
		p.Ack(op, Apply, false)
		return
	}
	changed := attrs.Diff(op.FSAttrs, op.DBAttrs)
	if changed.IsNull() {
		p.Ack(op, Terminate, true)
		return
	}
	op.FSAttrs = op.FSAttrs.Project(changed)
	op.DBOpType = listmgr.OpUpdate
	p.Ack(op, Apply, false)
}

// handleApplyBatch runs the batched insert/update against store, or (in
// dry-run) only tags the entry so a subsequent report can list it.
func handleApplyBatch(store listmgr.Store) BatchHandlerFunc {
	return func(ctx context.Context, p *Pipeline, ops []*Op) {
		if len(ops) == 0 {
			return
		}
		if p.cfg.DryRun {
			for _, op := range ops {
				_ = store.TagEntry(ctx, "dry_run", op.ID)
				p.Ack(op, Terminate, false)
			}
			return
		}

		idList := make([]ids.ID, len(ops))
		sets := make([]*attrs.AttrSet, len(ops))
		for i, op := range ops {
			idList[i] = op.ID
			sets[i] = op.FSAttrs
		}

		var err error
		switch ops[0].DBOpType {
		case listmgr.OpInsert:
			err = store.BatchInsert(ctx, idList, sets, true)
		case listmgr.OpUpdate:
			err = store.BatchUpdate(ctx, idList, sets)
		default:
			err = errors.New("pipeline: unbatchable DBOpType reached APPLY")
		}

		for _, op := range ops {
			if err != nil {
				op.Err = err
				p.Ack(op, Terminate, true)
				continue
			}
			p.Ack(op, Terminate, false)
		}
	}
}

// handleReportRM performs the per-op side of removal: a changelog
// unlink_last op (GCEntries) is soft-removed and an unlink op (GCNames)
// loses its name row here, matching the bulk MassRemove the
// scanner runs at end-of-scan (internal/scanner.RecordScanEnd) for the
// equivalent tree-wide case.
func handleReportRM(store listmgr.Store) HandlerFunc {
	return func(ctx context.Context, p *Pipeline, op *Op) {
		if !op.GCEntries && !op.GCNames {
			p.Ack(op, Terminate, false)
			return
		}
		var err error
		if op.GCEntries {
			// an op sent straight here from the changelog has no DBAttrs.
			old := op.DBAttrs
			if old == nil {
				old = op.FSAttrs
			}
			if old == nil {
				old = attrs.NewAttrSet()
			}
			err = store.SoftRemove(ctx, op.ID, old, time.Now().UnixNano())
		} else {
			err = store.Remove(ctx, op.ID, &listmgr.RemoveHint{ParentID: op.Parent, Name: op.Name}, false)
		}
		if err != nil {
			op.Err = err
			p.Ack(op, Terminate, true)
			return
		}
		p.Ack(op, Terminate, false)
	}
}
