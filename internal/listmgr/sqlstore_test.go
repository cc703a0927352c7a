package listmgr

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), Config{Driver: "sqlite", DSN: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fid(oid uint32) ids.ID { return ids.FidID{Seq: 0x200000401, Oid: oid, Ver: 0} }

func fullAttrs(size, mode uint64) *attrs.AttrSet {
	a := attrs.NewAttrSet()
	a.Set(attrs.ATTR_size, attrs.UintValue(size))
	a.Set(attrs.ATTR_mode, attrs.UintValue(mode))
	a.Set(attrs.ATTR_type, attrs.StrValue(string(attrs.TypeFile)))
	a.Set(attrs.ATTR_uid, attrs.UintValue(1000))
	a.Set(attrs.ATTR_gid, attrs.UintValue(1000))
	a.Set(attrs.ATTR_last_mod, attrs.BigintValue(1700000000))
	a.Set(attrs.ATTR_name, attrs.StrValue("a"))
	a.Set(attrs.ATTR_parent_id, attrs.EntryIDValue(fid(0x0)))
	a.Set(attrs.ATTR_md_update, attrs.BigintValue(1700000100))
	return a
}

// TestFirstInsert is end-to-end scenario #1 from spec.md §8.
func TestFirstInsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := fid(1)
	a := fullAttrs(1024, 0644)

	require.NoError(t, s.Insert(ctx, id, a, false))

	got, err := s.Get(ctx, id, a.Mask)
	require.NoError(t, err)
	v, ok := got.Get(attrs.ATTR_size)
	require.True(t, ok)
	require.Equal(t, uint64(1024), v.Uint)

	exists, err := s.Exists(ctx, id)
	require.NoError(t, err)
	require.True(t, exists)
}

// TestDiffOnlyUpdate is end-to-end scenario #2: REPORT_DIFF narrows the
// write set to what actually changed.
func TestDiffOnlyUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := fid(2)
	initial := fullAttrs(1024, 0644)
	require.NoError(t, s.Insert(ctx, id, initial, false))

	fsAttrs := initial.Clone()
	fsAttrs.Set(attrs.ATTR_size, attrs.UintValue(2048))
	fsAttrs.Set(attrs.ATTR_last_mod, attrs.BigintValue(1700000200))
	fsAttrs.Set(attrs.ATTR_md_update, attrs.BigintValue(1700000300))

	dbAttrs, err := s.Get(ctx, id, initial.Mask)
	require.NoError(t, err)

	diffMask := attrs.Diff(fsAttrs, dbAttrs)
	require.True(t, diffMask.Test(attrs.ATTR_size))
	require.True(t, diffMask.Test(attrs.ATTR_last_mod))
	require.False(t, diffMask.Test(attrs.ATTR_mode))

	update := fsAttrs.Project(attrs.Or(diffMask, attrs.MaskOf(attrs.ATTR_md_update)))
	require.NoError(t, s.Update(ctx, id, update))

	got, err := s.Get(ctx, id, attrs.MaskOf(attrs.ATTR_size, attrs.ATTR_mode))
	require.NoError(t, err)
	v, _ := got.Get(attrs.ATTR_size)
	require.Equal(t, uint64(2048), v.Uint)
	modeVal, _ := got.Get(attrs.ATTR_mode)
	require.Equal(t, uint64(0644), modeVal.Uint)
}

// TestSoftRemoveOnUnlinkLast is end-to-end scenario #3.
func TestSoftRemoveOnUnlinkLast(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := fid(3)
	a := fullAttrs(1024, 0644)
	a.Set(attrs.ATTR_fullpath, attrs.StrValue("/mnt/fs/a"))
	require.NoError(t, s.Insert(ctx, id, a, false))

	require.NoError(t, s.SoftRemove(ctx, id, a, 1700000400))

	exists, err := s.Exists(ctx, id)
	require.NoError(t, err)
	require.False(t, exists)

	var fullpath string
	var rmTime int64
	row := s.db.QueryRowContext(ctx, `SELECT fullpath, rm_time FROM softrm_table WHERE id = ?`, id.String())
	require.NoError(t, row.Scan(&fullpath, &rmTime))
	require.Equal(t, "/mnt/fs/a", fullpath)
	require.Equal(t, int64(1700000400), rmTime)
}

func TestBatchInsertIncompatibleMasks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := attrs.NewAttrSet()
	a.Set(attrs.ATTR_size, attrs.UintValue(1))
	a.Set(attrs.ATTR_name, attrs.StrValue("x"))
	a.Set(attrs.ATTR_parent_id, attrs.EntryIDValue(fid(0)))

	b := attrs.NewAttrSet()
	b.Set(attrs.ATTR_size, attrs.UintValue(1))
	b.Set(attrs.ATTR_uid, attrs.UintValue(5))

	err := s.BatchInsert(ctx, []ids.ID{fid(10), fid(11)}, []*attrs.AttrSet{a, b}, false)
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, InvalidArg, lerr.Code)
}

func TestMassRemoveGeneral(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	root := fid(0)
	for i := uint32(1); i <= 3; i++ {
		a := attrs.NewAttrSet()
		a.Set(attrs.ATTR_size, attrs.UintValue(uint64(i)))
		a.Set(attrs.ATTR_type, attrs.StrValue(string(attrs.TypeFile)))
		a.Set(attrs.ATTR_uid, attrs.UintValue(1000))
		a.Set(attrs.ATTR_gid, attrs.UintValue(1000))
		a.Set(attrs.ATTR_md_update, attrs.BigintValue(1))
		a.Set(attrs.ATTR_name, attrs.StrValue(fmt.Sprintf("f%d", i)))
		a.Set(attrs.ATTR_parent_id, attrs.EntryIDValue(root))
		require.NoError(t, s.Insert(ctx, fid(i), a, false))
	}

	var removed []ids.ID
	filter := Filter{Clauses: []FilterClause{{Attr: attrs.ATTR_uid, Op: OpEq, Value: attrs.UintValue(1000)}}}
	require.NoError(t, s.MassRemove(ctx, filter, false, 0, func(id ids.ID) { removed = append(removed, id) }))
	require.Len(t, removed, 3)

	for i := uint32(1); i <= 3; i++ {
		exists, err := s.Exists(ctx, fid(i))
		require.NoError(t, err)
		require.False(t, exists)
	}
}

func TestTagAndListUntagged(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := fullAttrs(1, 0644)
	require.NoError(t, s.Insert(ctx, fid(20), a, false))
	b := fullAttrs(1, 0644)
	b.Set(attrs.ATTR_name, attrs.StrValue("b"))
	require.NoError(t, s.Insert(ctx, fid(21), b, false))

	require.NoError(t, s.CreateTag(ctx, "partial-scan", Filter{}, true))
	require.NoError(t, s.TagEntry(ctx, "partial-scan", fid(20)))

	missed, err := s.ListUntagged(ctx, "partial-scan")
	require.NoError(t, err)
	require.Len(t, missed, 1)
	require.True(t, missed[0].Equal(fid(21)))

	require.NoError(t, s.DestroyTag(ctx, "partial-scan"))
}

// TestDialectUpsertClauses pins the per-driver upsert SQL: sqlite's
// ON CONFLICT form and MySQL's ON DUPLICATE KEY form, which rejects
// the sqlite syntax outright.
func TestDialectUpsertClauses(t *testing.T) {
	lite := &SQLStore{cfg: Config{Driver: "sqlite"}}
	my := &SQLStore{cfg: Config{Driver: "mysql"}}

	require.Equal(t, "ON CONFLICT(id) DO UPDATE SET", lite.conflictClause("id"))
	require.Equal(t, "ON DUPLICATE KEY UPDATE", my.conflictClause("id"))

	require.Equal(t, "size=excluded.size, uid=excluded.uid", lite.assignExcluded("size", "uid"))
	require.Equal(t, "size=VALUES(size), uid=VALUES(uid)", my.assignExcluded("size", "uid"))
}

func TestSchemaStatementsMySQLDialect(t *testing.T) {
	joined := strings.Join(schemaStatements("mysql"), "\n")
	require.NotContains(t, joined, "CREATE INDEX IF NOT EXISTS")
	require.NotContains(t, joined, "TEXT PRIMARY KEY")
	require.Contains(t, joined, "VARCHAR(64) PRIMARY KEY")

	lite := strings.Join(schemaStatements("sqlite"), "\n")
	require.Contains(t, lite, "CREATE INDEX IF NOT EXISTS")
	require.Contains(t, lite, "TEXT PRIMARY KEY")
}

// TestIteratorAnnexFilter exercises the annex_table join: a filter on an
// annex-resident attribute must not reference a table missing from the
// FROM clause.
func TestIteratorAnnexFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := fullAttrs(10, 0644)
	a.Set(attrs.ATTR_creation_time, attrs.BigintValue(1690000000))
	require.NoError(t, s.Insert(ctx, fid(40), a, false))

	filter := Filter{Clauses: []FilterClause{
		{Attr: attrs.ATTR_creation_time, Op: OpEq, Value: attrs.BigintValue(1690000000)},
	}}
	it, err := s.NewIterator(ctx, filter, IterOpts{AttrMask: attrs.MaskOf(attrs.ATTR_size)})
	require.NoError(t, err)
	defer it.Close()

	id, got, err := it.GetNext(ctx)
	require.NoError(t, err)
	require.True(t, id.Equal(fid(40)))
	v, ok := got.Get(attrs.ATTR_size)
	require.True(t, ok)
	require.Equal(t, uint64(10), v.Uint)
}

func TestReportGroupByUID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := uint32(1); i <= 2; i++ {
		a := fullAttrs(100, 0644)
		a.Set(attrs.ATTR_name, attrs.StrValue(fmt.Sprintf("r%d", i)))
		require.NoError(t, s.Insert(ctx, fid(30+i), a, false))
	}

	it, err := s.Report(ctx, []ReportField{
		{Attr: attrs.ATTR_uid, Op: AggGroupBy},
		{Attr: attrs.ATTR_size, Op: AggSum},
	}, nil, Filter{}, ReportOpts{ForceNoAcct: true})
	require.NoError(t, err)
	defer it.Close()

	row, err := it.GetNext(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), row.Values[0].Uint)
	require.Equal(t, uint64(200), row.Values[1].Uint)
}
