package listmgr

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// sqlIterator walks a *sql.Rows of ids, fetching the requested attribute
// mask per row via the store's regular Get path. This keeps decoding
// logic in one place at the cost of one extra query per row; callers
// that need report-style throughput should use Report instead.
type sqlIterator struct {
	ctx   context.Context
	store *SQLStore
	rows  *sql.Rows
	mask  attrs.AttrMask
}

func (it *sqlIterator) GetNext(ctx context.Context) (ids.ID, *attrs.AttrSet, error) {
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return nil, nil, newErr(classify(err), "Iterator.GetNext", err)
		}
		return nil, nil, newErr(EndOfList, "Iterator.GetNext", nil)
	}
	var idText string
	if err := it.rows.Scan(&idText); err != nil {
		return nil, nil, newErr(classify(err), "Iterator.GetNext.scan", err)
	}
	id, err := it.store.parseID(idText)
	if err != nil {
		return nil, nil, newErr(InvalidArg, "Iterator.GetNext.parseID", err)
	}
	a, err := it.store.Get(ctx, id, it.mask)
	if err != nil {
		return id, nil, err
	}
	return id, a, nil
}

func (it *sqlIterator) Close() error { return it.rows.Close() }

// NewIterator opens a filtered, sorted iterator over main-table rows.
// Filters touching the names or annex tables join them in automatically
// so callers can filter on parent_id, name, depth, path_update, or the
// annex columns.
func (s *SQLStore) NewIterator(ctx context.Context, filter Filter, opts IterOpts) (Iterator, error) {
	query := "SELECT main_table.id FROM main_table" + mainJoins(filter)
	where, args := buildWhere(filter, "main_table")
	if where != "" {
		query += " " + where
	}
	if len(opts.Sort) > 0 {
		var parts []string
		for _, sp := range opts.Sort {
			_, col, ok := columnFor(sp.Attr)
			if !ok {
				continue
			}
			dir := "ASC"
			if sp.Desc {
				dir = "DESC"
			}
			parts = append(parts, fmt.Sprintf("%s %s", col, dir))
		}
		if len(parts) > 0 {
			query += " ORDER BY " + strings.Join(parts, ", ")
		}
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newErr(classify(err), "NewIterator", err)
	}
	return &sqlIterator{ctx: ctx, store: s, rows: rows, mask: opts.AttrMask}, nil
}

func filterTouchesTable(f Filter, table string) bool {
	for _, c := range f.Clauses {
		t, _, ok := columnFor(c.Attr)
		if ok && t == table {
			return true
		}
	}
	return false
}

// mainJoins renders the join clauses a main_table query needs so every
// table a filter references is actually in scope.
func mainJoins(f Filter) string {
	var joins string
	if filterTouchesTable(f, "names_table") {
		joins += " JOIN names_table ON names_table.id = main_table.id"
	}
	if filterTouchesTable(f, "annex_table") {
		joins += " LEFT JOIN annex_table ON annex_table.id = main_table.id"
	}
	return joins
}

// --- Report ---------------------------------------------------------------

// sqlReportIterator decodes one row per Next call from a pre-run
// aggregated query, in the field order the caller requested.
type sqlReportIterator struct {
	rows       *sql.Rows
	fields     []ReportField
	profile    *ReportProfile
}

func (it *sqlReportIterator) GetNext(ctx context.Context) (ReportRow, error) {
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return ReportRow{}, newErr(classify(err), "Report.GetNext", err)
		}
		return ReportRow{}, newErr(EndOfList, "Report.GetNext", nil)
	}

	n := len(it.fields)
	scanArgs := make([]any, 0, n+1)
	raw := make([]sql.NullString, n)
	for i := range raw {
		scanArgs = append(scanArgs, &raw[i])
	}
	var histJSON sql.NullString
	if it.profile != nil && it.profile.Enabled {
		scanArgs = append(scanArgs, &histJSON)
	}
	if err := it.rows.Scan(scanArgs...); err != nil {
		return ReportRow{}, newErr(classify(err), "Report.GetNext.scan", err)
	}

	out := ReportRow{Values: make([]attrs.Value, n)}
	for i, f := range it.fields {
		out.Values[i] = reportValueFromText(f, raw[i])
	}
	if it.profile != nil && it.profile.Enabled && histJSON.Valid {
		out.Histogram = make([]uint64, histogramBuckets)
		// histogram is stored as a comma-separated list for report rows
		// built off the accounting table's JSON array.
		parseHistogramCSV(histJSON.String, out.Histogram)
	}
	return out, nil
}

func (it *sqlReportIterator) Close() error { return it.rows.Close() }

func reportValueFromText(f ReportField, raw sql.NullString) attrs.Value {
	if !raw.Valid {
		return attrs.Value{}
	}
	if f.Op == AggCount || f.Op == AggCountDistinct {
		return attrs.BiguintValue(uint64(parseIntStr(raw.String)))
	}
	meta, ok := attrs.Meta(f.Attr)
	if !ok {
		return attrs.StrValue(raw.String)
	}
	switch meta.DBType {
	case attrs.DBUint, attrs.DBUshort, attrs.DBBiguint:
		return attrs.BiguintValue(uint64(parseIntStr(raw.String)))
	case attrs.DBInt, attrs.DBShort, attrs.DBBigint:
		return attrs.BigintValue(parseIntStr(raw.String))
	case attrs.DBBool:
		return attrs.BoolValue(raw.String == "1" || raw.String == "true")
	default:
		return attrs.StrValue(raw.String)
	}
}

func parseHistogramCSV(s string, out []uint64) {
	parts := strings.Split(strings.Trim(s, "[]"), ",")
	for i, p := range parts {
		if i >= len(out) {
			break
		}
		var v int64
		fmt.Sscan(strings.TrimSpace(p), &v)
		if v > 0 {
			out[i] = uint64(v)
		}
	}
}

// accountingCovers reports whether every field and filter clause can be
// answered from the accounting rollup table: every field attribute must
// be uid/gid/type/status or an aggregate over size/blocks, and every
// filter clause must reference one of those same columns.
func accountingCovers(fields []ReportField, filter Filter) bool {
	allowed := map[attrs.AttrIndex]bool{
		attrs.ATTR_uid: true, attrs.ATTR_gid: true, attrs.ATTR_type: true,
		attrs.ATTR_size: true, attrs.ATTR_blocks: true,
	}
	for _, f := range fields {
		if !allowed[f.Attr] {
			return false
		}
	}
	for _, c := range filter.Clauses {
		if !allowed[c.Attr] {
			return false
		}
	}
	return true
}

// Report runs an aggregated query per the report engine design: routed to
// the accounting rollup table when every requested field and filter is
// covered by it and ForceNoAcct is not set, otherwise against the main
// tables directly.
func (s *SQLStore) Report(ctx context.Context, fields []ReportField, profile *ReportProfile, filter Filter, opts ReportOpts) (ReportIterator, error) {
	if len(fields) == 0 {
		return nil, newErr(InvalidArg, "Report", fmt.Errorf("at least one field required"))
	}
	useAcct := !opts.ForceNoAcct && accountingCovers(fields, filter)
	table := "main_table"
	if useAcct {
		table = "accounting_table"
	}

	var selectParts, groupBy, having []string
	var args []any
	var havingArgs []any
	for _, f := range fields {
		meta, ok := attrs.Meta(f.Attr)
		if !ok {
			return nil, newErr(InvalidArg, "Report", fmt.Errorf("unknown attr %v", f.Attr))
		}
		col := meta.Name
		if useAcct {
			col = reportAcctColumn(f.Attr)
		}
		switch f.Op {
		case AggGroupBy:
			selectParts = append(selectParts, col)
			groupBy = append(groupBy, col)
		case AggMin:
			selectParts = append(selectParts, fmt.Sprintf("MIN(%s)", col))
		case AggMax:
			selectParts = append(selectParts, fmt.Sprintf("MAX(%s)", col))
		case AggAvg:
			selectParts = append(selectParts, fmt.Sprintf("AVG(%s)", col))
		case AggSum:
			selectParts = append(selectParts, fmt.Sprintf("SUM(%s)", col))
		case AggCount:
			selectParts = append(selectParts, "COUNT(*)")
		case AggCountDistinct:
			selectParts = append(selectParts, fmt.Sprintf("COUNT(DISTINCT %s)", col))
		}
		if f.Having != nil {
			having = append(having, fmt.Sprintf("%s %s ?", col, opSQL(f.Having.Op)))
			havingArgs = append(havingArgs, valueArg(f.Having.Value))
		}
	}
	if profile != nil && profile.Enabled && useAcct {
		selectParts = append(selectParts, "histogram_json")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectParts, ", "), table)
	// Filters on group-by fields go to WHERE; filters on aggregates
	// (Having on non-group-by fields) already routed above.
	groupByFilter := Filter{}
	for _, c := range filter.Clauses {
		isGroupByField := false
		for _, f := range fields {
			if f.Attr == c.Attr && f.Op == AggGroupBy {
				isGroupByField = true
			}
		}
		if isGroupByField {
			groupByFilter.Clauses = append(groupByFilter.Clauses, c)
		}
	}
	where, whereArgs := buildWhere(groupByFilter, table)
	if where != "" {
		query += " " + where
		args = append(args, whereArgs...)
	}
	if len(groupBy) > 0 {
		query += " GROUP BY " + strings.Join(groupBy, ", ")
	}
	if len(having) > 0 {
		query += " HAVING " + strings.Join(having, " AND ")
		args = append(args, havingArgs...)
	}
	var orderParts []string
	for _, f := range fields {
		if f.Sort != nil {
			dir := "ASC"
			if f.Sort.Desc {
				dir = "DESC"
			}
			meta, _ := attrs.Meta(f.Attr)
			orderParts = append(orderParts, fmt.Sprintf("%s %s", meta.Name, dir))
		}
	}
	if len(orderParts) > 0 {
		query += " ORDER BY " + strings.Join(orderParts, ", ")
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newErr(classify(err), "Report", err)
	}
	return &sqlReportIterator{rows: rows, fields: fields, profile: profile}, nil
}

func reportAcctColumn(idx attrs.AttrIndex) string {
	switch idx {
	case attrs.ATTR_uid:
		return "uid"
	case attrs.ATTR_gid:
		return "gid"
	case attrs.ATTR_type:
		return "type"
	case attrs.ATTR_size:
		return "size_sum"
	case attrs.ATTR_blocks:
		return "blocks_sum"
	default:
		return "cnt"
	}
}

// --- MassRemove -------------------------------------------------------

// MassRemove implements the §4.1.1 algorithm: empty-filter truncate,
// names-only fast path, or the general temporary-table path ordered by
// decreasing fullpath length so child paths are removed before their
// parents. A filter confined to main_table or annex_table has no direct
// single-table delete; it takes the general path.
func (s *SQLStore) MassRemove(ctx context.Context, filter Filter, soft bool, rmTime int64, onRemoved func(ids.ID)) error {
	if filter.IsEmpty() {
		return s.massRemoveAll(ctx, soft, rmTime, onRemoved)
	}
	if touchesOnlyTable(filter, "names_table") {
		return s.massRemoveNamesOnly(ctx, filter)
	}
	if fastTable, ok := massRemoveFastTable(filter); ok {
		return s.massRemoveFastPath(ctx, filter, fastTable, soft, rmTime, onRemoved)
	}
	return s.massRemoveGeneral(ctx, filter, soft, rmTime, onRemoved)
}

// massRemoveFastTable reports the single non-stripe_items table a filter
// is confined to, if any.
func massRemoveFastTable(filter Filter) (string, bool) {
	for _, table := range []string{"main_table", "annex_table", "names_table"} {
		if touchesOnlyTable(filter, table) {
			return table, true
		}
	}
	return "", false
}

func (s *SQLStore) massRemoveAll(ctx context.Context, soft bool, rmTime int64, onRemoved func(ids.ID)) error {
	return withRetry(ctx, s.cfg.RetryMin, s.cfg.RetryMax, "MassRemove.all", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return newErr(classify(err), "MassRemove.all.begin", err)
		}
		if soft {
			rows, err := tx.QueryContext(ctx, `SELECT id FROM main_table`)
			if err != nil {
				tx.Rollback()
				return newErr(classify(err), "MassRemove.all.select", err)
			}
			var idTexts []string
			for rows.Next() {
				var t string
				if err := rows.Scan(&t); err == nil {
					idTexts = append(idTexts, t)
				}
			}
			rows.Close()
			softrmQ := `INSERT INTO softrm_table (id, fullpath, rm_time, attrs_json) VALUES (?,?,?,'{}') ` +
				s.conflictClause("id") + " " + s.assignExcluded("fullpath", "rm_time")
			for _, idText := range idTexts {
				fullpath := s.onePathTx(ctx, tx, idText)
				if _, err := tx.ExecContext(ctx, softrmQ, idText, fullpath, rmTime); err != nil {
					tx.Rollback()
					return newErr(classify(err), "MassRemove.all.softrm", err)
				}
			}
		}
		for _, stmt := range []string{
			`DELETE FROM main_table`, `DELETE FROM annex_table`,
			`DELETE FROM names_table`, `DELETE FROM accounting_table`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return newErr(classify(err), "MassRemove.all.truncate", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return newErr(classify(err), "MassRemove.all.commit", err)
		}
		return nil
	})
}

func (s *SQLStore) massRemoveNamesOnly(ctx context.Context, filter Filter) error {
	where, args := buildWhere(filter, "names_table")
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM names_table %s`, where), args...)
	if err != nil {
		return newErr(classify(err), "MassRemove.namesOnly", err)
	}
	return nil
}

func (s *SQLStore) massRemoveFastPath(ctx context.Context, filter Filter, table string, soft bool, rmTime int64, onRemoved func(ids.ID)) error {
	if table != "names_table" {
		// Every table other than names_table goes through the general
		// path, soft or hard, so soft-remove and cross-table cleanup run
		// per id.
		return s.massRemoveGeneral(ctx, filter, soft, rmTime, onRemoved)
	}
	return s.massRemoveNamesOnly(ctx, filter)
}

// onePathTx returns one known fullpath for idText, built from any single
// remaining names_table row, or "" if none remains.
func (s *SQLStore) onePathTx(ctx context.Context, tx *sql.Tx, idText string) string {
	var parentID, name string
	row := tx.QueryRowContext(ctx, `SELECT parent_id, name FROM names_table WHERE id = ? LIMIT 1`, idText)
	if err := row.Scan(&parentID, &name); err != nil {
		return ""
	}
	return s.resolvePath(ctx, tx, parentID, name)
}

// resolvePath walks parent_id links up to the root, joining names with
// "/". Depth is bounded defensively in case of a corrupt cycle.
func (s *SQLStore) resolvePath(ctx context.Context, tx *sql.Tx, parentID, name string) string {
	segs := []string{name}
	cur := parentID
	for i := 0; i < 4096; i++ {
		var nextParent, nextName string
		row := tx.QueryRowContext(ctx, `SELECT parent_id, name FROM names_table WHERE id = ? LIMIT 1`, cur)
		if err := row.Scan(&nextParent, &nextName); err != nil {
			break
		}
		segs = append([]string{nextName}, segs...)
		cur = nextParent
	}
	return "/" + strings.Join(segs, "/")
}

// massRemoveGeneral builds a per-call temporary table of candidate
// (id, fullpath) pairs, iterates it in decreasing fullpath-length order
// so children are removed before parents, and applies soft or hard
// removal per id via the normal single-id path.
func (s *SQLStore) massRemoveGeneral(ctx context.Context, filter Filter, soft bool, rmTime int64, onRemoved func(ids.ID)) error {
	tmpTable := newTempTableName("massrm")
	// The statement execution policy relaxes isolation before building
	// the temp table, since it is populated by a read-only scan that
	// must not hold locks across the whole operation. Best-effort on
	// both drivers.
	if s.cfg.Driver == "mysql" {
		s.db.ExecContext(ctx, `SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED`)
	} else {
		s.db.ExecContext(ctx, `PRAGMA read_uncommitted = 1`)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TEMPORARY TABLE %s (id TEXT, fullpath TEXT)`, tmpTable)); err != nil {
		return newErr(classify(err), "MassRemove.general.createTmp", err)
	}
	defer s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tmpTable))

	where, args := buildWhere(filter, "main_table")
	joins := " LEFT JOIN names_table ON names_table.id = main_table.id"
	if filterTouchesTable(filter, "annex_table") {
		joins += " LEFT JOIN annex_table ON annex_table.id = main_table.id"
	}
	selectQuery := fmt.Sprintf(`SELECT DISTINCT main_table.id FROM main_table%s %s`, joins, where)
	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return newErr(classify(err), "MassRemove.general.select", err)
	}
	var idTexts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err == nil {
			idTexts = append(idTexts, t)
		}
	}
	rows.Close()

	type candidate struct {
		id       string
		fullpath string
	}
	cands := make([]candidate, 0, len(idTexts))
	for _, idText := range idTexts {
		path := s.onePathTxDB(ctx, idText)
		cands = append(cands, candidate{id: idText, fullpath: path})
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, fullpath) VALUES (?,?)`, tmpTable), idText, path); err != nil {
			return newErr(classify(err), "MassRemove.general.insertTmp", err)
		}
	}

	// Decreasing path-length order: child paths removed before parents.
	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			if len(cands[j].fullpath) > len(cands[i].fullpath) {
				cands[i], cands[j] = cands[j], cands[i]
			}
		}
	}

	for _, c := range cands {
		id, err := s.parseID(c.id)
		if err != nil {
			continue
		}
		if soft {
			a := attrs.NewAttrSet()
			a.Set(attrs.ATTR_fullpath, attrs.StrValue(c.fullpath))
			if err := s.SoftRemove(ctx, id, a, rmTime); err != nil {
				return err
			}
		} else {
			if err := s.Remove(ctx, id, nil, true); err != nil {
				return err
			}
		}
		if onRemoved != nil {
			onRemoved(id)
		}
	}

	// Remove(last=true) already deleted every names_table row keyed by
	// each candidate id; any remaining row matching the filter by a
	// names-table column (e.g. a stale parent_id) is cleaned here.
	if !soft && filterTouchesTable(filter, "names_table") {
		where, args := buildWhere(filter, "names_table")
		if where != "" {
			s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM names_table %s`, where), args...)
		}
	}
	return nil
}

func (s *SQLStore) onePathTxDB(ctx context.Context, idText string) string {
	var parentID, name string
	row := s.db.QueryRowContext(ctx, `SELECT parent_id, name FROM names_table WHERE id = ? LIMIT 1`, idText)
	if err := row.Scan(&parentID, &name); err != nil {
		return ""
	}
	segs := []string{name}
	cur := parentID
	for i := 0; i < 4096; i++ {
		var nextParent, nextName string
		row := s.db.QueryRowContext(ctx, `SELECT parent_id, name FROM names_table WHERE id = ? LIMIT 1`, cur)
		if err := row.Scan(&nextParent, &nextName); err != nil {
			break
		}
		segs = append([]string{nextName}, segs...)
		cur = nextParent
	}
	return "/" + strings.Join(segs, "/")
}
