// Package policy implements the trigger/worker-pool scheduler that
// drives policy runs: one Checker goroutine per trigger wakes on its
// check interval, probes the configured target(s) for threshold
// breaches, and feeds candidates to a bounded worker pool that executes
// the trigger's action.
package policy

import (
	"time"

	"github.com/robinhood-fs/rbh/internal/attrs"
)

// TargetKind selects what a Trigger probes for usage.
type TargetKind int

const (
	TargetFS TargetKind = iota
	TargetOST
	TargetPool
	TargetUser
	TargetGroup
	TargetFileClass
	TargetAlways
)

func (k TargetKind) String() string {
	switch k {
	case TargetFS:
		return "fs"
	case TargetOST:
		return "ost"
	case TargetPool:
		return "pool"
	case TargetUser:
		return "user"
	case TargetGroup:
		return "group"
	case TargetFileClass:
		return "fileclass"
	case TargetAlways:
		return "always"
	default:
		return "unknown"
	}
}

// Threshold is a high/low watermark expressed in whichever units the
// target understands; a nil field means that dimension is not checked.
type Threshold struct {
	Count   *uint64
	Volume  *uint64
	Percent *float64
}

// ActionParams is the trigger's action invocation template, passed
// through to action.Executor unmodified.
type ActionParams struct {
	Command string
	Args    map[string]string
}

// Trigger is one configured policy rule.
type Trigger struct {
	Name          string
	Target        TargetKind
	Names         []string
	HW, LW        Threshold
	CheckInterval time.Duration
	PostRunWait   time.Duration
	Action        ActionParams
	AlertHW       bool
	AlertLW       bool

	RuleFilter      attrs.AttrMask
	SortAttr        attrs.AttrIndex
	StatusCurrentAttr attrs.AttrIndex
	HasStatusCurrent bool

	// MinAge is the age-based criterion candidates are re-validated
	// against (after scaling by the maintenance time modifier). Zero
	// disables the check.
	MinAge time.Duration
}

// TriggerStatus is the lifecycle state machine recorded per trigger.
type TriggerStatus int

const (
	NotChecked TriggerStatus = iota
	BeingChecked
	Running
	OK
	NoList
	NotEnough
	CheckError
	Aborted
)

func (s TriggerStatus) String() string {
	switch s {
	case NotChecked:
		return "not_checked"
	case BeingChecked:
		return "being_checked"
	case Running:
		return "running"
	case OK:
		return "ok"
	case NoList:
		return "no_list"
	case NotEnough:
		return "not_enough"
	case CheckError:
		return "check_error"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Counters tallies one run's (or a trigger's lifetime) outcomes.
type Counters struct {
	NbrOK       uint64
	NbrNOK      uint64
	VolOK       uint64
	BlocksOK    uint64
	TargetedOK  uint64
}

// TriggerInfo is the live/persisted state of one trigger.
type TriggerInfo struct {
	LastCheck time.Time
	Status    TriggerStatus
	LastUsage Threshold
	LastCtr   Counters
	TotalCtr  Counters
}

// Persisted vars table key prefixes, matching spec.md §6.
func varStatus(name string) string   { return "trigger." + name + ".status" }
func varLastCtr(name string) string  { return "trigger." + name + ".last_ctr" }
func varTotalCtr(name string) string { return "trigger." + name + ".total_ctr" }
