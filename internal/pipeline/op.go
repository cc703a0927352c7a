// Package pipeline implements the entry-processing pipeline: a fixed
// sequence of stages (GET_ID, GET_INFO_DB, GET_INFO_FS, REPORT_DIFF,
// APPLY, REPORT_RM), each with its own parallelism, optional id-
// constraint serialization, and optional batch handler, ending in a
// batchable ListMgr apply step.
package pipeline

import (
	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
	"github.com/robinhood-fs/rbh/internal/listmgr"
)

// Stage identifies one step of the fixed pipeline sequence.
type Stage int

const (
	GetID Stage = iota
	GetInfoDB
	GetInfoFS
	ReportDiff
	Apply
	ReportRM
	numStages
	Terminate Stage = -1
)

func (s Stage) String() string {
	switch s {
	case GetID:
		return "GET_ID"
	case GetInfoDB:
		return "GET_INFO_DB"
	case GetInfoFS:
		return "GET_INFO_FS"
	case ReportDiff:
		return "REPORT_DIFF"
	case Apply:
		return "APPLY"
	case ReportRM:
		return "REPORT_RM"
	case Terminate:
		return "TERMINATE"
	default:
		return "UNKNOWN"
	}
}

// Source distinguishes a scanner-produced op from a changelog-produced
// op. Both arrive with their EntryId already known; a scanner op whose
// FSAttrs are already filled skips the re-stat in GET_INFO_FS.
type Source int

const (
	SourceScan Source = iota
	SourceChangelog
)

// Op is the in-flight per-entry work item (PipelineOp in the data
// model). Created by a producer (scanner or changelog reader), owned by
// the pipeline until acknowledged with Terminate, then released.
type Op struct {
	ID     ids.ID
	Parent ids.ID
	Name   string
	Source Source
	Stage  Stage

	DBOpType listmgr.DBOpType

	FSAttrs *attrs.AttrSet
	DBAttrs *attrs.AttrSet

	DBAttrNeed attrs.AttrMask
	FSAttrNeed attrs.AttrMask

	GCEntries bool
	GCNames   bool

	Err error

	Done func(*Op)

	// idHeld marks an op that already owns its id's serialization slot at
	// an id-constrained stage (it was released by the previous holder's
	// ack), so re-dispatch must not queue it behind itself.
	idHeld bool
}

// reset clears an Op for reuse from the free list.
func (op *Op) reset() {
	*op = Op{}
}
