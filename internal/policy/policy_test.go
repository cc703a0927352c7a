package policy

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robinhood-fs/rbh/internal/action"
	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
	"github.com/robinhood-fs/rbh/internal/listmgr"
)

// TestTimeModifierOutsideWindow is the maintenance-mode property from
// spec.md §8: well before the window, the modifier is a no-op.
func TestTimeModifierOutsideWindow(t *testing.T) {
	maint := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	now := maint.Add(-48 * time.Hour)
	got := timeModifier(now, maint, 24*time.Hour, time.Hour)
	require.Equal(t, 1.0, got)
}

func TestTimeModifierAtMaintenance(t *testing.T) {
	maint := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	got := timeModifier(maint, maint, 24*time.Hour, time.Hour)
	require.InDelta(t, 1.0/24.0, got, 1e-9)
}

func TestTimeModifierMidWindowIsMonotonic(t *testing.T) {
	maint := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	early := timeModifier(maint.Add(-20*time.Hour), maint, 24*time.Hour, time.Hour)
	late := timeModifier(maint.Add(-4*time.Hour), maint, 24*time.Hour, time.Hour)
	require.Greater(t, early, late, "modifier must decay monotonically toward maintenance")
}

func TestGCDIntervalReducesToCommonPeriod(t *testing.T) {
	got := gcdInterval([]time.Duration{10 * time.Minute, 15 * time.Minute, 25 * time.Minute})
	require.Equal(t, 5*time.Minute, got)
}

func TestGCDIntervalSingleValue(t *testing.T) {
	got := gcdInterval([]time.Duration{7 * time.Second})
	require.Equal(t, 7*time.Second, got)
}

// fakeStore is a minimal in-memory listmgr.Store for exercising Pool.
type fakeStore struct {
	rows map[string]*attrs.AttrSet
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[string]*attrs.AttrSet{}} }

func (f *fakeStore) Insert(ctx context.Context, id ids.ID, a *attrs.AttrSet, updateIfExists bool) error {
	f.rows[id.String()] = a
	return nil
}
func (f *fakeStore) BatchInsert(ctx context.Context, idl []ids.ID, sets []*attrs.AttrSet, updateIfExists bool) error {
	return nil
}
func (f *fakeStore) Update(ctx context.Context, id ids.ID, a *attrs.AttrSet) error {
	f.rows[id.String()] = a
	return nil
}
func (f *fakeStore) BatchUpdate(ctx context.Context, idl []ids.ID, sets []*attrs.AttrSet) error {
	return nil
}
func (f *fakeStore) Get(ctx context.Context, id ids.ID, mask attrs.AttrMask) (*attrs.AttrSet, error) {
	a, ok := f.rows[id.String()]
	if !ok {
		return nil, listmgr.ErrNotFound
	}
	return a, nil
}
func (f *fakeStore) Exists(ctx context.Context, id ids.ID) (bool, error) { return true, nil }
func (f *fakeStore) Remove(ctx context.Context, id ids.ID, hint *listmgr.RemoveHint, last bool) error {
	return nil
}
func (f *fakeStore) SoftRemove(ctx context.Context, id ids.ID, oldAttrs *attrs.AttrSet, rmTime int64) error {
	return nil
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
func (f *fakeStore) TagEntry(ctx context.Context, tag string, id ids.ID) error  { return nil }
func (f *fakeStore) ListUntagged(ctx context.Context, tag string) ([]ids.ID, error) { return nil, nil }
func (f *fakeStore) DestroyTag(ctx context.Context, tag string) error          { return nil }
func (f *fakeStore) GetVar(ctx context.Context, name string) (string, error)   { return "", nil }
func (f *fakeStore) SetVar(ctx context.Context, name, value string) error      { return nil }
func (f *fakeStore) BeginTx(ctx context.Context) (listmgr.Tx, error)           { return nil, nil }
func (f *fakeStore) Close() error                                              { return nil }

func fid(n uint64) ids.ID { return ids.FidID{Seq: 1, Oid: uint32(n), Ver: 0} }

// TestRunPolicyIsIdempotentOnAlreadyHandledCandidates is the trigger
// idempotence property from spec.md §8: running the same candidate set
// twice with an executor that always succeeds tallies exactly len(candidates)
// successes each time, never double-counting within a single run.
func TestRunPolicyIsIdempotentOnAlreadyHandledCandidates(t *testing.T) {
	store := newFakeStore()
	var candidates []Candidate
	for i := 0; i < 5; i++ {
		id := fid(uint64(i))
		a := attrs.NewAttrSet()
		a.Set(attrs.ATTR_size, attrs.UintValue(1))
		store.rows[id.String()] = a
		candidates = append(candidates, Candidate{ID: id, Attrs: a})
	}

	var aborted atomic.Bool
	pool := &Pool{Workers: 2, Store: store, Executor: action.NoopExecutor{}, Aborted: &aborted}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ctr1 := pool.RunPolicy(ctx, candidates, nil, action.Params{Command: "true"})
	require.EqualValues(t, 5, ctr1.NbrOK)

	ctr2 := pool.RunPolicy(ctx, candidates, nil, action.Params{Command: "true"})
	require.EqualValues(t, 5, ctr2.NbrOK)
}

// TestRunPolicyStopsAtWorkLimit is the bounded-work-target property of
// trigger scenario #5: with a count limit of 3 and more candidates than
// that, exactly 3 actions run and the rest are drained without acting.
func TestRunPolicyStopsAtWorkLimit(t *testing.T) {
	store := newFakeStore()
	var candidates []Candidate
	for i := 0; i < 10; i++ {
		id := fid(uint64(200 + i))
		a := attrs.NewAttrSet()
		a.Set(attrs.ATTR_size, attrs.UintValue(1))
		store.rows[id.String()] = a
		candidates = append(candidates, Candidate{ID: id, Attrs: a})
	}

	var aborted atomic.Bool
	limit := uint64(3)
	pool := &Pool{
		Workers: 1, Store: store, Executor: action.NoopExecutor{},
		Aborted: &aborted, Target: &Threshold{Count: &limit},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ctr := pool.RunPolicy(ctx, candidates, nil, action.Params{Command: "true"})
	require.EqualValues(t, 3, ctr.NbrOK)
}

func TestWorkLimitReached(t *testing.T) {
	three := uint64(3)
	require.True(t, workLimitReached(Threshold{}, Counters{}))
	require.True(t, workLimitReached(Threshold{Count: &three}, Counters{NbrOK: 3}))
	require.False(t, workLimitReached(Threshold{Count: &three}, Counters{NbrOK: 2}))
	vol := uint64(1 << 20)
	require.False(t, workLimitReached(Threshold{Volume: &vol}, Counters{VolOK: 100}))
	require.True(t, workLimitReached(Threshold{Volume: &vol}, Counters{VolOK: 1 << 20}))
}

func TestRunPolicySkipsVanishedEntries(t *testing.T) {
	store := newFakeStore()
	id := fid(99)
	candidates := []Candidate{{ID: id, Attrs: attrs.NewAttrSet()}}

	var aborted atomic.Bool
	pool := &Pool{Workers: 1, Store: store, Executor: action.NoopExecutor{}, Aborted: &aborted}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ctr := pool.RunPolicy(ctx, candidates, nil, action.Params{Command: "true"})
	require.EqualValues(t, 0, ctr.NbrOK)
}
