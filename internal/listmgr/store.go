// Package listmgr is the persistent attribute store: it translates typed
// AttrSets to and from rows across the main, annex (which also holds the
// stripe layout as JSON), names, and soft-removed tables, and exposes insert/update/remove/query/report and
// transaction scoping over them.
package listmgr

import (
	"context"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// DBOpType selects which ListMgr operation a pipeline op should execute
// at APPLY.
type DBOpType int

const (
	OpNone DBOpType = iota
	OpInsert
	OpUpdate
	OpRemoveOne
	OpRemoveLast
	OpSoftRemove
)

// RemoveHint carries the parent_id/name needed to remove a single
// hardlink (attrs_hint in the spec) when last=false.
type RemoveHint struct {
	ParentID ids.ID
	Name     string
}

// Filter is a conjunction of column comparisons, expressed against
// AttrIndex so the store can decide which table(s) it touches. Ops
// supports the comparisons reports and mass-remove need.
type Filter struct {
	Clauses []FilterClause
}

type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLike
)

type FilterClause struct {
	Attr  attrs.AttrIndex
	Op    CompareOp
	Value attrs.Value
}

// IsEmpty reports whether the filter matches every row (no clauses).
func (f Filter) IsEmpty() bool { return len(f.Clauses) == 0 }

// TouchesOnly reports whether every clause in f references an attribute
// carrying one of the given table flags and no other table.
func (f Filter) TouchesOnly(flag attrs.Flag) bool {
	if len(f.Clauses) == 0 {
		return false
	}
	for _, c := range f.Clauses {
		meta, ok := attrs.Meta(c.Attr)
		if !ok || meta.Flags&flag == 0 {
			return false
		}
	}
	return true
}

// SortSpec orders iterator and report results by a single attribute.
type SortSpec struct {
	Attr attrs.AttrIndex
	Desc bool
}

// IterOpts bounds an iterator's result set.
type IterOpts struct {
	Sort     []SortSpec
	Limit    int
	AttrMask attrs.AttrMask
}

// Iterator yields (id, attrs) pairs matching a filter. Callers must call
// Close when done, even after GetNext returns ErrEndOfList.
type Iterator interface {
	// GetNext returns the next (id, attrs) pair, or a *Error wrapping
	// EndOfList when exhausted.
	GetNext(ctx context.Context) (ids.ID, *attrs.AttrSet, error)
	Close() error
}

// ReportAggOp is the aggregation function applied to a report field.
type ReportAggOp int

const (
	AggGroupBy ReportAggOp = iota
	AggMin
	AggMax
	AggAvg
	AggSum
	AggCount
	AggCountDistinct
)

// ReportField describes one output column of a report.
type ReportField struct {
	Attr   attrs.AttrIndex
	Op     ReportAggOp
	Sort   *SortSpec
	Having *FilterClause // aggregate-level filter, applied in HAVING
}

// ReportProfile adds a size histogram per group to a report.
type ReportProfile struct {
	Enabled        bool
	RatioAttrNum   attrs.AttrIndex
	RatioAttrDenom attrs.AttrIndex
	WithRatio      bool
}

// ReportOpts bounds a report's result set.
type ReportOpts struct {
	Limit          int
	ForceNoAcct    bool
	Profile        *ReportProfile
}

// ReportRow is one output row: values in the same order as the requested
// fields, plus an optional histogram/ratio when a profile was requested.
type ReportRow struct {
	Values    []attrs.Value
	Histogram []uint64 // 10 buckets, only when a profile was requested
	Ratio     float64
}

// ReportIterator yields report rows.
type ReportIterator interface {
	GetNext(ctx context.Context) (ReportRow, error)
	Close() error
}

// CommitBehavior selects how a Store groups row mutations into database
// transactions.
type CommitBehavior int

const (
	CommitAuto CommitBehavior = iota
	CommitEveryOp
	CommitBatch
)

// Tx is a handle for an explicit transaction started by BeginTx.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the full ListMgr contract described in the data model: a
// persistent (EntryId -> AttrSet) and (parent,name) -> EntryId store with
// reporting, tagging, and mass-removal.
type Store interface {
	// Insert creates or (if updateIfExists) merges a row. attrs' mask must
	// not include any read-only bit.
	Insert(ctx context.Context, id ids.ID, a *attrs.AttrSet, updateIfExists bool) error
	// BatchInsert inserts many ids at once; every AttrSet's mask must be
	// pairwise batch-compatible (see attrs.BatchCompatible).
	BatchInsert(ctx context.Context, ids []ids.ID, sets []*attrs.AttrSet, updateIfExists bool) error

	// Update touches only the bits set in a's mask.
	Update(ctx context.Context, id ids.ID, a *attrs.AttrSet) error
	// BatchUpdate is the batched counterpart of Update.
	BatchUpdate(ctx context.Context, ids []ids.ID, sets []*attrs.AttrSet) error

	// Get fetches the fields selected by mask. Bits are cleared in the
	// returned set for any field that was NULL or missing.
	Get(ctx context.Context, id ids.ID, mask attrs.AttrMask) (*attrs.AttrSet, error)
	// Exists probes existence without fetching attributes.
	Exists(ctx context.Context, id ids.ID) (bool, error)

	// Remove deletes or decrements a link per the data model's remove
	// semantics. hint is required when last=false.
	Remove(ctx context.Context, id ids.ID, hint *RemoveHint, last bool) error
	// SoftRemove moves id to the soft-removed table and then performs a
	// hard Remove(last=true) in the same transaction.
	SoftRemove(ctx context.Context, id ids.ID, oldAttrs *attrs.AttrSet, rmTime int64) error
	// MassRemove implements the §4.1.1 algorithm.
	MassRemove(ctx context.Context, filter Filter, soft bool, rmTime int64, onRemoved func(ids.ID)) error

	// NewIterator opens a filtered, sorted iterator over main-table rows.
	NewIterator(ctx context.Context, filter Filter, opts IterOpts) (Iterator, error)
	// Children materializes the direct children of parent matching filter.
	Children(ctx context.Context, parent ids.ID, filter Filter, mask attrs.AttrMask) ([]ids.ID, []*attrs.AttrSet, error)

	// Report runs an aggregated query per §4.1.2.
	Report(ctx context.Context, fields []ReportField, profile *ReportProfile, filter Filter, opts ReportOpts) (ReportIterator, error)

	// CreateTag populates a private table with `select id from main where
	// filter`. If reset, any existing tag of the same name is dropped first.
	CreateTag(ctx context.Context, tag string, filter Filter, reset bool) error
	// TagEntry removes id from the named tag's table (a reconciled entry
	// removes itself from the tag of a partial scan).
	TagEntry(ctx context.Context, tag string, id ids.ID) error
	// ListUntagged returns ids remaining in the tag table (the "missed"
	// entries of a partial scan).
	ListUntagged(ctx context.Context, tag string) ([]ids.ID, error)
	// DestroyTag drops the tag's table.
	DestroyTag(ctx context.Context, tag string) error

	// GetVar/SetVar read and write the persistent key/value variable
	// table (scan bookkeeping, per-policy state).
	GetVar(ctx context.Context, name string) (string, error)
	SetVar(ctx context.Context, name, value string) error

	// BeginTx starts an explicit transaction. The configured
	// CommitBehavior is not consulted: every other Store method commits
	// its own transaction before returning.
	BeginTx(ctx context.Context) (Tx, error)

	Close() error
}
