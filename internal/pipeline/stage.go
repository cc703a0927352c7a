package pipeline

import "context"

// ParallelMode selects how a stage schedules its handler across ops.
type ParallelMode int

const (
	// Parallel runs Workers goroutines each consuming the stage's queue.
	Parallel ParallelMode = iota
	// Sequential runs exactly one goroutine, giving the stage a total
	// order over the ops it processes (REPORT_DIFF, REPORT_RM).
	Sequential
)

// HandlerFunc processes one op and must end by calling p.Ack.
type HandlerFunc func(ctx context.Context, p *Pipeline, op *Op)

// BatchHandlerFunc processes a batch of mutually mask-compatible ops
// sharing the same DBOpType, and must Ack each of them.
type BatchHandlerFunc func(ctx context.Context, p *Pipeline, ops []*Op)

// StageDef describes one stage of the fixed pipeline sequence.
type StageDef struct {
	Stage        Stage
	Parallelism  ParallelMode
	Workers      int
	IDConstraint bool
	Batchable    bool
	BatchSize    int
	QueueDepth   int
	Handler      HandlerFunc
	BatchHandler BatchHandlerFunc
}

func (d StageDef) workers() int {
	if d.Parallelism == Sequential {
		return 1
	}
	if d.Workers <= 0 {
		return 1
	}
	return d.Workers
}

func (d StageDef) queueDepth() int {
	if d.QueueDepth <= 0 {
		return 256
	}
	return d.QueueDepth
}
