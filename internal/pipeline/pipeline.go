package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robinhood-fs/rbh/internal/attrs"
)

// batchIdleWindow bounds how long a partial APPLY batch waits for more
// mask-compatible ops before being flushed anyway.
const batchIdleWindow = 200 * time.Millisecond

// Config bounds a Pipeline's queues and batching.
type Config struct {
	StageQueueDepth int
	BatchSize       int
	DryRun          bool
}

func (c Config) queueDepth() int {
	if c.StageQueueDepth <= 0 {
		return 256
	}
	return c.StageQueueDepth
}

func maskOf(a *attrs.AttrSet) attrs.AttrMask {
	if a == nil {
		return attrs.AttrMask{}
	}
	return a.Mask
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return 64
	}
	return c.BatchSize
}

// Pipeline runs the fixed GET_ID -> GET_INFO_DB -> GET_INFO_FS ->
// REPORT_DIFF -> APPLY -> REPORT_RM sequence over a stream of Ops, each
// stage's input queue being a bounded channel.
type Pipeline struct {
	cfg      Config
	defs     [numStages]StageDef
	queues   [numStages]chan *Op
	feedback *Feedback

	pool sync.Pool

	idMu      sync.Mutex
	idPending map[Stage]map[string][]*Op

	aborted  atomic.Bool
	inFlight atomic.Int64
}

// New builds a Pipeline from a full [numStages]StageDef table, normally
// produced by DefaultStages.
func New(cfg Config, defs [numStages]StageDef, fb *Feedback) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		defs:      defs,
		feedback:  fb,
		idPending: make(map[Stage]map[string][]*Op),
	}
	for s := Stage(0); int(s) < int(numStages); s++ {
		depth := defs[s].queueDepth()
		if depth <= 0 {
			depth = cfg.queueDepth()
		}
		p.queues[s] = make(chan *Op, depth)
	}
	p.pool.New = func() any { return &Op{} }
	return p
}

// NewOp returns a zeroed Op from the free list.
func (p *Pipeline) NewOp() *Op {
	op := p.pool.Get().(*Op)
	op.reset()
	return op
}

// Aborted reports whether a stage handler panicked and the pipeline
// should be considered unreliable for the remainder of this run.
func (p *Pipeline) Aborted() bool { return p.aborted.Load() }

// InFlight returns the number of ops submitted but not yet terminated.
func (p *Pipeline) InFlight() int64 { return p.inFlight.Load() }

// Submit enqueues op at its Stage (GetID for an op without an id,
// GetInfoDB for scanner and changelog ops that already know their id),
// blocking if that stage's queue is full.
func (p *Pipeline) Submit(ctx context.Context, op *Op) error {
	p.inFlight.Add(1)
	select {
	case p.queues[op.Stage] <- op:
		return nil
	case <-ctx.Done():
		p.inFlight.Add(-1)
		return ctx.Err()
	}
}

// Run spawns Parallelism consumer goroutines for every stage and blocks
// until ctx is cancelled; it does not return when the queues drain.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for s := Stage(0); int(s) < int(numStages); s++ {
		s := s
		def := p.defs[s]
		if def.Batchable && def.BatchHandler != nil {
			g.Go(func() error { return p.runBatcher(ctx, s, def) })
			continue
		}
		for i := 0; i < def.workers(); i++ {
			g.Go(func() error { return p.runStage(ctx, s, def) })
		}
	}
	return g.Wait()
}

func (p *Pipeline) runStage(ctx context.Context, s Stage, def StageDef) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op, ok := <-p.queues[s]:
			if !ok {
				return nil
			}
			if def.IDConstraint && p.deferIfPending(s, op) {
				continue
			}
			p.invoke(ctx, def, op)
		}
	}
}

// invoke calls def.Handler, recovering a panic into an aborted pipeline
// and a dropped op rather than crashing the worker goroutine.
func (p *Pipeline) invoke(ctx context.Context, def StageDef, op *Op) {
	defer func() {
		if r := recover(); r != nil {
			p.aborted.Store(true)
			if p.feedback != nil {
				p.feedback.record(op.Stage, statusError, 0)
			}
			p.Ack(op, Terminate, true)
		}
	}()
	def.Handler(ctx, p, op)
}

// deferIfPending queues op behind any other op for the same id already
// in flight at an id-constrained stage, returning true if op was queued
// rather than dispatched immediately.
func (p *Pipeline) deferIfPending(s Stage, op *Op) bool {
	if op.ID == nil {
		return false
	}
	if op.idHeld {
		// releaseNext already granted this op the slot.
		op.idHeld = false
		return false
	}
	key := op.ID.String()
	p.idMu.Lock()
	defer p.idMu.Unlock()
	m, ok := p.idPending[s]
	if !ok {
		m = make(map[string][]*Op)
		p.idPending[s] = m
	}
	pending, busy := m[key]
	if busy {
		m[key] = append(pending, op)
		return true
	}
	m[key] = nil
	return false
}

// releaseNext dispatches the next op (if any) queued behind id at stage s.
func (p *Pipeline) releaseNext(s Stage, id string) {
	p.idMu.Lock()
	m, ok := p.idPending[s]
	if !ok {
		p.idMu.Unlock()
		return
	}
	queue := m[id]
	if len(queue) == 0 {
		delete(m, id)
		p.idMu.Unlock()
		return
	}
	next := queue[0]
	m[id] = queue[1:]
	next.idHeld = true
	p.idMu.Unlock()
	// Re-enqueue off this goroutine: the caller is one of stage s's own
	// consumers, and a blocking send into its own full queue would wedge
	// the whole stage.
	go func() { p.queues[s] <- next }()
}

// Ack advances op to next stage, or terminates it: drop ||
// next == Terminate runs op.Done and returns op to the free list. Any
// op that arrived at an id-constrained stage releases the next op queued
// behind the same id before it leaves that stage.
func (p *Pipeline) Ack(op *Op, next Stage, drop bool) {
	prevStage := op.Stage
	if p.defs[prevStage].IDConstraint && op.ID != nil {
		p.releaseNext(prevStage, op.ID.String())
	}
	if p.feedback != nil {
		st := statusOK
		if drop {
			st = statusDropped
		}
		p.feedback.record(prevStage, st, 0)
	}
	if drop || next == Terminate {
		if op.Done != nil {
			op.Done(op)
		}
		p.inFlight.Add(-1)
		p.pool.Put(op)
		return
	}
	if next <= prevStage {
		// stage index must progress monotonically; a backward ack is a
		// detected inconsistency, not a recoverable condition.
		p.aborted.Store(true)
		if op.Done != nil {
			op.Done(op)
		}
		p.inFlight.Add(-1)
		p.pool.Put(op)
		return
	}
	op.Stage = next
	p.queues[next] <- op
}

// runBatcher accumulates consecutive ops sharing DBOpType and a
// pairwise-compatible mask up to BatchSize (or until the queue drains),
// then invokes the stage's BatchHandler once per batch. Disabled (one op
// per call) when DryRun is set, since a dry run only tags entries.
func (p *Pipeline) runBatcher(ctx context.Context, s Stage, def StageDef) error {
	batchSize := p.cfg.batchSize()
	if def.BatchSize > 0 {
		batchSize = def.BatchSize
	}
	if p.cfg.DryRun {
		batchSize = 1
	}
	var batch []*Op
	flush := func() {
		if len(batch) == 0 {
			return
		}
		def.BatchHandler(ctx, p, batch)
		batch = batch[:0]
	}
	idle := time.NewTimer(batchIdleWindow)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()
		case <-idle.C:
			flush()
			idle.Reset(batchIdleWindow)
		case op, ok := <-p.queues[s]:
			if !ok {
				flush()
				return nil
			}
			if len(batch) > 0 {
				last := batch[len(batch)-1]
				if last.DBOpType != op.DBOpType || !attrs.BatchCompatible(maskOf(last.FSAttrs), maskOf(op.FSAttrs)) {
					flush()
				}
			}
			batch = append(batch, op)
			if len(batch) >= batchSize {
				flush()
				if !idle.Stop() {
					<-idle.C
				}
				idle.Reset(batchIdleWindow)
			}
		}
	}
}
