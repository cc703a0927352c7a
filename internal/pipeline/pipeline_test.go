package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
	"github.com/robinhood-fs/rbh/internal/listmgr"
)

// fakeStore is a minimal in-memory listmgr.Store good enough to drive
// the pipeline's GET_INFO_DB/APPLY handlers in isolation.
type fakeStore struct {
	mu       sync.Mutex
	rows     map[string]*attrs.AttrSet
	inserted [][]ids.ID
	updated  [][]ids.ID
	tagged   []ids.ID
	removed  []ids.ID
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[string]*attrs.AttrSet{}} }

func (f *fakeStore) Insert(ctx context.Context, id ids.ID, a *attrs.AttrSet, updateIfExists bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id.String()] = a
	return nil
}

func (f *fakeStore) BatchInsert(ctx context.Context, idl []ids.ID, sets []*attrs.AttrSet, updateIfExists bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range idl {
		f.rows[id.String()] = sets[i]
	}
	f.inserted = append(f.inserted, idl)
	return nil
}

func (f *fakeStore) Update(ctx context.Context, id ids.ID, a *attrs.AttrSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id.String()] = a
	return nil
}

func (f *fakeStore) BatchUpdate(ctx context.Context, idl []ids.ID, sets []*attrs.AttrSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range idl {
		f.rows[id.String()] = sets[i]
	}
	f.updated = append(f.updated, idl)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id ids.ID, mask attrs.AttrMask) (*attrs.AttrSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id.String()]
	if !ok {
		return nil, &listmgr.Error{Code: listmgr.NotFound, Op: "Get"}
	}
	return a.Project(mask), nil
}

func (f *fakeStore) Exists(ctx context.Context, id ids.ID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id.String()]
	return ok, nil
}

func (f *fakeStore) Remove(ctx context.Context, id ids.ID, hint *listmgr.RemoveHint, last bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	delete(f.rows, id.String())
	return nil
}

func (f *fakeStore) SoftRemove(ctx context.Context, id ids.ID, oldAttrs *attrs.AttrSet, rmTime int64) error {
	return f.Remove(ctx, id, nil, true)
}

func (f *fakeStore) MassRemove(ctx context.Context, filter listmgr.Filter, soft bool, rmTime int64, onRemoved func(ids.ID)) error {
	return nil
}

func (f *fakeStore) NewIterator(ctx context.Context, filter listmgr.Filter, opts listmgr.IterOpts) (listmgr.Iterator, error) {
	return nil, listmgr.ErrNotFound
}

func (f *fakeStore) Children(ctx context.Context, parent ids.ID, filter listmgr.Filter, mask attrs.AttrMask) ([]ids.ID, []*attrs.AttrSet, error) {
	return nil, nil, nil
}

func (f *fakeStore) Report(ctx context.Context, fields []listmgr.ReportField, profile *listmgr.ReportProfile, filter listmgr.Filter, opts listmgr.ReportOpts) (listmgr.ReportIterator, error) {
	return nil, listmgr.ErrNotFound
}

func (f *fakeStore) CreateTag(ctx context.Context, tag string, filter listmgr.Filter, reset bool) error {
	return nil
}
func (f *fakeStore) TagEntry(ctx context.Context, tag string, id ids.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagged = append(f.tagged, id)
	return nil
}
func (f *fakeStore) ListUntagged(ctx context.Context, tag string) ([]ids.ID, error) { return nil, nil }
func (f *fakeStore) DestroyTag(ctx context.Context, tag string) error               { return nil }
func (f *fakeStore) GetVar(ctx context.Context, name string) (string, error)        { return "", nil }
func (f *fakeStore) SetVar(ctx context.Context, name, value string) error           { return nil }
func (f *fakeStore) BeginTx(ctx context.Context) (listmgr.Tx, error)                { return nil, nil }
func (f *fakeStore) Close() error                                                   { return nil }

func fid(n uint64) ids.ID { return ids.FidID{Seq: 1, Oid: uint32(n), Ver: 0} }

// TestPipelineInsertNewEntry drives a GET_ID-less (id already known)
// scanner op for an entry absent from the store end to end: GET_INFO_DB
// must report not-found, GET_INFO_FS is skipped (FSAttrs pre-populated),
// and APPLY must insert it.
func TestPipelineInsertNewEntry(t *testing.T) {
	store := newFakeStore()
	defs := DefaultStages(store, Resolvers{}, 4, 4, 2)
	p := New(Config{StageQueueDepth: 16, BatchSize: 4}, defs, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)

	op := p.NewOp()
	op.ID = fid(1)
	op.Source = SourceScan
	op.Stage = GetInfoDB
	op.FSAttrs = attrs.NewAttrSet()
	op.FSAttrs.Set(attrs.ATTR_size, attrs.UintValue(10))
	op.Done = func(*Op) { wg.Done() }

	require.NoError(t, p.Submit(ctx, op))

	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	wait := make(chan struct{})
	go func() { wg.Wait(); close(wait) }()
	select {
	case <-wait:
	case <-time.After(time.Second):
		t.Fatal("op never terminated")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.inserted, 1)
	require.Equal(t, fid(1), store.inserted[0][0])
}

// TestPipelineIDConstraintSerializesSameID verifies two ops for the same
// id at GET_INFO_DB never run concurrently: the second is held until the
// first acks onward.
func TestPipelineIDConstraintSerializesSameID(t *testing.T) {
	var active int32
	var maxActive int32
	var mu sync.Mutex

	defs := DefaultStages(newFakeStore(), Resolvers{}, 4, 4, 4)
	defs[GetInfoDB] = StageDef{
		Stage:        GetInfoDB,
		Parallelism:  Parallel,
		Workers:      4,
		IDConstraint: true,
		Handler: func(ctx context.Context, p *Pipeline, op *Op) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			p.Ack(op, Terminate, false)
		},
	}
	p := New(Config{StageQueueDepth: 16}, defs, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		op := p.NewOp()
		op.ID = fid(7)
		op.Stage = GetInfoDB
		op.Done = func(*Op) { wg.Done() }
		require.NoError(t, p.Submit(ctx, op))
	}

	go p.Run(ctx)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int32(1), maxActive, "same-id ops must serialize at an id-constrained stage")
}

// TestApplyBatcherGroupsCompatibleOps feeds three ops with identical,
// mutually compatible masks to the APPLY stage and checks they land in a
// single BatchInsert call rather than three.
func TestApplyBatcherGroupsCompatibleOps(t *testing.T) {
	store := newFakeStore()
	defs := DefaultStages(store, Resolvers{}, 8, 8, 2)
	p := New(Config{StageQueueDepth: 16, BatchSize: 8}, defs, NewFeedback(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		a := attrs.NewAttrSet()
		a.Set(attrs.ATTR_size, attrs.UintValue(uint64(i)))
		op := p.NewOp()
		op.ID = fid(uint64(100 + i))
		op.Stage = Apply
		op.DBOpType = listmgr.OpInsert
		op.FSAttrs = a
		op.Done = func(*Op) { wg.Done() }
		require.NoError(t, p.Submit(ctx, op))
	}

	go p.Run(ctx)
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.inserted, 1)
	require.Len(t, store.inserted[0], 3)
}

func TestMaskOfNilIsZero(t *testing.T) {
	require.True(t, maskOf(nil).IsNull())
}
