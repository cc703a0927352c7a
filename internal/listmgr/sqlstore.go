package listmgr

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// Config configures an SQLStore connection.
type Config struct {
	Driver         string // "sqlite" or "mysql"
	DSN            string
	CommitBehavior CommitBehavior
	BatchSize      int
	RetryMin       time.Duration
	RetryMax       time.Duration
	IDFactory      func(string) (ids.ID, error) // Parse function for the configured EntryId realization
}

// SQLStore is the database/sql-backed Store implementation. One SQLStore
// is shared by every goroutine in the process; database/sql's own
// connection pool stands in for the one-session-per-thread model the
// source assumes, since Go database handles are safe for concurrent use.
type SQLStore struct {
	db     *sql.DB
	cfg    Config
	mu     sync.Mutex // serializes DDL and temp-table lifecycle, not row ops
	opsSinceCommit int
}

var _ Store = (*SQLStore)(nil)

// Open connects, bootstraps the schema if needed, and returns a ready
// Store.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	driverName := cfg.Driver
	if driverName == "" {
		driverName = "sqlite"
	}
	cfg.Driver = driverName
	if cfg.RetryMin == 0 {
		cfg.RetryMin = 100 * time.Millisecond
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 256
	}
	if cfg.IDFactory == nil {
		cfg.IDFactory = ids.Parse
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, newErr(ConnectFailed, "Open", err)
	}
	s := &SQLStore{db: db, cfg: cfg}
	if err := s.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) bootstrap(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.cfg.Driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; a re-run trips
			// error 1061 on every index that already exists.
			if s.cfg.Driver == "mysql" && strings.Contains(strings.ToLower(err.Error()), "duplicate key name") {
				continue
			}
			return newErr(ConnectFailed, "bootstrap", fmt.Errorf("exec %q: %w", stmt, err))
		}
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// conflictClause renders the driver's upsert head for an INSERT whose
// unique key is key: sqlite's ON CONFLICT form or MySQL's ON DUPLICATE
// KEY form (which ignores the key list, it always uses the row's keys).
func (s *SQLStore) conflictClause(key string) string {
	if s.cfg.Driver == "mysql" {
		return "ON DUPLICATE KEY UPDATE"
	}
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET", key)
}

// excludedRef references the value the rejected INSERT carried for col,
// usable in the upsert's update list.
func (s *SQLStore) excludedRef(col string) string {
	if s.cfg.Driver == "mysql" {
		return fmt.Sprintf("VALUES(%s)", col)
	}
	return "excluded." + col
}

// assignExcluded renders "col=<inserted value>" for each column, the
// overwrite-with-new-values update list shared by every plain upsert.
func (s *SQLStore) assignExcluded(cols ...string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + "=" + s.excludedRef(c)
	}
	return strings.Join(parts, ", ")
}

// parseID converts the textual primary key stored in id columns back to
// an ids.ID using the configured realization.
func (s *SQLStore) parseID(text string) (ids.ID, error) {
	return s.cfg.IDFactory(text)
}

// --- Insert / BatchInsert ---------------------------------------------

func (s *SQLStore) Insert(ctx context.Context, id ids.ID, a *attrs.AttrSet, updateIfExists bool) error {
	return s.BatchInsert(ctx, []ids.ID{id}, []*attrs.AttrSet{a}, updateIfExists)
}

func (s *SQLStore) BatchInsert(ctx context.Context, idList []ids.ID, sets []*attrs.AttrSet, updateIfExists bool) error {
	if len(idList) != len(sets) {
		return newErr(InvalidArg, "BatchInsert", fmt.Errorf("ids and sets length mismatch"))
	}
	for i := 1; i < len(sets); i++ {
		if !attrs.BatchCompatible(sets[0].Mask, sets[i].Mask) {
			return newErr(InvalidArg, "BatchInsert", fmt.Errorf("incompatible masks at index %d", i))
		}
	}
	return withRetry(ctx, s.cfg.RetryMin, s.cfg.RetryMax, "BatchInsert", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return newErr(classify(err), "BatchInsert.begin", err)
		}
		for i, id := range idList {
			r, err := encodeRow(id, sets[i])
			if err != nil {
				tx.Rollback()
				return err
			}
			if err := s.upsertMain(ctx, tx, r, updateIfExists); err != nil {
				tx.Rollback()
				return err
			}
			if err := s.upsertAnnex(ctx, tx, r, updateIfExists); err != nil {
				tx.Rollback()
				return err
			}
			if r.name != nil && r.parentID != nil {
				if err := s.upsertName(ctx, tx, r, updateIfExists); err != nil {
					tx.Rollback()
					return err
				}
			}
			if err := s.bumpAccounting(ctx, tx, r, 1); err != nil {
				tx.Rollback()
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return newErr(classify(err), "BatchInsert.commit", err)
		}
		return nil
	})
}

func (s *SQLStore) upsertMain(ctx context.Context, tx *sql.Tx, r *row, updateIfExists bool) error {
	statusJSON, err := json.Marshal(r.status)
	if err != nil {
		return newErr(InvalidArg, "upsertMain", err)
	}
	var statusArg any // NULL when no status bit is set
	if len(r.status) > 0 {
		statusArg = string(statusJSON)
	}
	q := `INSERT INTO main_table (id, size, blocks, mode, type, uid, gid, last_access, last_mod, nlink, dircount, md_update, status_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`
	if updateIfExists {
		// a NULL value is a field outside the caller's mask: keep the
		// stored column instead of clearing it.
		var sets []string
		for _, c := range []string{"size", "blocks", "mode", "type", "uid", "gid", "last_access",
			"last_mod", "nlink", "dircount", "md_update", "status_json"} {
			sets = append(sets, fmt.Sprintf("%s=COALESCE(%s, %s)", c, s.excludedRef(c), c))
		}
		q += " " + s.conflictClause("id") + " " + strings.Join(sets, ", ")
	}
	_, err = tx.ExecContext(ctx, q,
		r.ID.String(), r.size, r.blocks, r.mode, r.typ, r.uid, r.gid, r.lastAccess, r.lastMod, r.nlink, r.dircount, r.mdUpdate, statusArg)
	if err != nil {
		return newErr(classify(err), "upsertMain", err)
	}
	return nil
}

func (s *SQLStore) upsertAnnex(ctx context.Context, tx *sql.Tx, r *row, updateIfExists bool) error {
	if r.creationTime == nil && r.link == nil && r.stripeInfo == nil && r.stripeItems == nil && len(r.smInfo) == 0 {
		return nil
	}
	stripeInfoJSON, _ := json.Marshal(r.stripeInfo)
	stripeItemsJSON, _ := json.Marshal(r.stripeItems)
	smInfoJSON, _ := json.Marshal(r.smInfo)

	q := `INSERT INTO annex_table (id, creation_time, link, stripe_info_json, stripe_items_json, sminfo_json)
		VALUES (?,?,?,?,?,?)`
	if updateIfExists {
		q += " " + s.conflictClause("id") + " " + s.assignExcluded(
			"creation_time", "link", "stripe_info_json", "stripe_items_json", "sminfo_json")
	}
	_, err := tx.ExecContext(ctx, q,
		r.ID.String(), r.creationTime, r.link, string(stripeInfoJSON), string(stripeItemsJSON), string(smInfoJSON))
	if err != nil {
		return newErr(classify(err), "upsertAnnex", err)
	}
	return nil
}

func (s *SQLStore) upsertName(ctx context.Context, tx *sql.Tx, r *row, updateIfExists bool) error {
	q := `INSERT INTO names_table (parent_id, name, id, depth, path_update)
		VALUES (?,?,?,?,?)`
	if updateIfExists {
		q += " " + s.conflictClause("parent_id, name") + " " + s.assignExcluded("id", "depth", "path_update")
	}
	_, err := tx.ExecContext(ctx, q,
		r.parentID.String(), *r.name, r.ID.String(), r.depth, r.pathUpdate)
	if err != nil {
		return newErr(classify(err), "upsertName", err)
	}
	return nil
}

// bumpAccounting maintains the per-(uid,gid,type,status) rollup in
// application code, inside the caller's transaction — the spec's
// design-notes fallback for implementations that do not run accounting
// via database-side triggers.
func (s *SQLStore) bumpAccounting(ctx context.Context, tx *sql.Tx, r *row, sign int64) error {
	if r.uid == nil || r.gid == nil || r.typ == nil {
		return nil
	}
	size := int64(0)
	if r.size != nil {
		size = *r.size
	}
	blocks := int64(0)
	if r.blocks != nil {
		blocks = *r.blocks
	}
	bucket := sizeHistogramBucket(uint64(size))

	row := tx.QueryRowContext(ctx, `SELECT histogram_json FROM accounting_table WHERE uid=? AND gid=? AND type=? AND status=''`,
		fmt.Sprint(*r.uid), fmt.Sprint(*r.gid), *r.typ)
	var histJSON sql.NullString
	var hist [histogramBuckets]int64
	if err := row.Scan(&histJSON); err == nil && histJSON.Valid {
		json.Unmarshal([]byte(histJSON.String), &hist)
	}
	hist[bucket] += sign
	newHist, _ := json.Marshal(hist)

	q := `INSERT INTO accounting_table (uid, gid, type, status, cnt, size_sum, blocks_sum, histogram_json)
		VALUES (?,?,?,'',?,?,?,?) ` +
		s.conflictClause("uid, gid, type, status") + fmt.Sprintf(
		" cnt = cnt + %s, size_sum = size_sum + %s, blocks_sum = blocks_sum + %s, histogram_json = %s",
		s.excludedRef("cnt"), s.excludedRef("size_sum"), s.excludedRef("blocks_sum"), s.excludedRef("histogram_json"))
	_, err := tx.ExecContext(ctx, q,
		fmt.Sprint(*r.uid), fmt.Sprint(*r.gid), *r.typ, sign, size*sign, blocks*sign, string(newHist))
	if err != nil {
		return newErr(classify(err), "bumpAccounting", err)
	}
	return nil
}

// --- Update / BatchUpdate ----------------------------------------------

func (s *SQLStore) Update(ctx context.Context, id ids.ID, a *attrs.AttrSet) error {
	return s.BatchUpdate(ctx, []ids.ID{id}, []*attrs.AttrSet{a})
}

func (s *SQLStore) BatchUpdate(ctx context.Context, idList []ids.ID, sets []*attrs.AttrSet) error {
	if len(idList) != len(sets) {
		return newErr(InvalidArg, "BatchUpdate", fmt.Errorf("ids and sets length mismatch"))
	}
	return withRetry(ctx, s.cfg.RetryMin, s.cfg.RetryMax, "BatchUpdate", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return newErr(classify(err), "BatchUpdate.begin", err)
		}
		for i, id := range idList {
			r, err := encodeRow(id, sets[i])
			if err != nil {
				tx.Rollback()
				return err
			}
			if err := s.upsertMain(ctx, tx, r, true); err != nil {
				tx.Rollback()
				return err
			}
			if err := s.upsertAnnex(ctx, tx, r, true); err != nil {
				tx.Rollback()
				return err
			}
			if r.name != nil && r.parentID != nil {
				if err := s.upsertName(ctx, tx, r, true); err != nil {
					tx.Rollback()
					return err
				}
			}
		}
		if err := tx.Commit(); err != nil {
			return newErr(classify(err), "BatchUpdate.commit", err)
		}
		return nil
	})
}

// --- Get / Exists --------------------------------------------------------

func (s *SQLStore) Get(ctx context.Context, id ids.ID, mask attrs.AttrMask) (*attrs.AttrSet, error) {
	r := &row{status: statusEnvelope{}, smInfo: smInfoEnvelope{}}
	var statusJSON, smInfoJSON, stripeInfoJSON, stripeItemsJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT size, blocks, mode, type, uid, gid, last_access, last_mod, nlink, dircount, md_update, status_json
		FROM main_table WHERE id = ?`, id.String()).Scan(
		&r.size, &r.blocks, &r.mode, &r.typ, &r.uid, &r.gid, &r.lastAccess, &r.lastMod, &r.nlink, &r.dircount, &r.mdUpdate, &statusJSON)
	if err == sql.ErrNoRows {
		return nil, newErr(NotFound, "Get", err)
	}
	if err != nil {
		return nil, newErr(classify(err), "Get", err)
	}
	if statusJSON.Valid {
		json.Unmarshal([]byte(statusJSON.String), &r.status)
	}

	row2 := s.db.QueryRowContext(ctx, `
		SELECT creation_time, link, stripe_info_json, stripe_items_json, sminfo_json
		FROM annex_table WHERE id = ?`, id.String())
	if err := row2.Scan(&r.creationTime, &r.link, &stripeInfoJSON, &stripeItemsJSON, &smInfoJSON); err == nil {
		if stripeInfoJSON.Valid {
			var si attrs.StripeInfo
			if json.Unmarshal([]byte(stripeInfoJSON.String), &si) == nil {
				r.stripeInfo = &si
			}
		}
		if stripeItemsJSON.Valid {
			json.Unmarshal([]byte(stripeItemsJSON.String), &r.stripeItems)
		}
		if smInfoJSON.Valid {
			json.Unmarshal([]byte(smInfoJSON.String), &r.smInfo)
		}
	}

	nameRow := s.db.QueryRowContext(ctx, `SELECT parent_id, name, depth, path_update FROM names_table WHERE id = ? LIMIT 1`, id.String())
	var parentIDText sql.NullString
	if err := nameRow.Scan(&parentIDText, &r.name, &r.depth, &r.pathUpdate); err == nil && parentIDText.Valid {
		if pid, perr := s.parseID(parentIDText.String); perr == nil {
			r.parentID = pid
		}
	}

	return decodeRow(r, mask)
}

func (s *SQLStore) Exists(ctx context.Context, id ids.ID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM main_table WHERE id = ?`, id.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, newErr(classify(err), "Exists", err)
	}
	return true, nil
}

// --- Remove / SoftRemove -------------------------------------------------

func (s *SQLStore) Remove(ctx context.Context, id ids.ID, hint *RemoveHint, last bool) error {
	return withRetry(ctx, s.cfg.RetryMin, s.cfg.RetryMax, "Remove", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return newErr(classify(err), "Remove.begin", err)
		}
		if err := s.removeTx(ctx, tx, id, hint, last); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return newErr(classify(err), "Remove.commit", err)
		}
		return nil
	})
}

func (s *SQLStore) removeTx(ctx context.Context, tx *sql.Tx, id ids.ID, hint *RemoveHint, last bool) error {
	if !last {
		if hint == nil || hint.ParentID == nil || hint.Name == "" {
			return newErr(InvalidArg, "Remove", fmt.Errorf("hint with parent_id and name required when last=false"))
		}
		if _, err := tx.ExecContext(ctx, `UPDATE main_table SET nlink = nlink - 1 WHERE id = ?`, id.String()); err != nil {
			return newErr(classify(err), "Remove.decrement", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM names_table WHERE parent_id = ? AND name = ?`, hint.ParentID.String(), hint.Name); err != nil {
			return newErr(classify(err), "Remove.name", err)
		}
		return nil
	}

	// last=true: multi-table delete keyed by id, plus accounting reversal.
	var uid, gid, typ sql.NullString
	var size, blocks sql.NullInt64
	_ = tx.QueryRowContext(ctx, `SELECT uid, gid, type, size, blocks FROM main_table WHERE id = ?`, id.String()).
		Scan(&uid, &gid, &typ, &size, &blocks)

	for _, stmt := range []string{
		`DELETE FROM main_table WHERE id = ?`,
		`DELETE FROM annex_table WHERE id = ?`,
		`DELETE FROM names_table WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id.String()); err != nil {
			return newErr(classify(err), "Remove.delete", err)
		}
	}
	if uid.Valid && gid.Valid && typ.Valid {
		r := &row{uid: intPtr(parseIntStr(uid.String)), gid: intPtr(parseIntStr(gid.String)), typ: &typ.String, size: nullIntPtr(size), blocks: nullIntPtr(blocks)}
		if err := s.bumpAccounting(ctx, tx, r, -1); err != nil {
			return err
		}
	}
	return nil
}

func parseIntStr(s string) int64 {
	var i int64
	fmt.Sscan(s, &i)
	return i
}
func intPtr(i int64) *int64 { return &i }
func nullIntPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func (s *SQLStore) SoftRemove(ctx context.Context, id ids.ID, oldAttrs *attrs.AttrSet, rmTime int64) error {
	return withRetry(ctx, s.cfg.RetryMin, s.cfg.RetryMax, "SoftRemove", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return newErr(classify(err), "SoftRemove.begin", err)
		}
		fullpath := ""
		if v, ok := oldAttrs.Get(attrs.ATTR_fullpath); ok {
			fullpath = v.Str
		}
		attrsJSON, _ := json.Marshal(softRMFields(oldAttrs))
		q := `INSERT INTO softrm_table (id, fullpath, rm_time, attrs_json) VALUES (?,?,?,?) ` +
			s.conflictClause("id") + " " + s.assignExcluded("fullpath", "rm_time", "attrs_json")
		_, err = tx.ExecContext(ctx, q, id.String(), fullpath, rmTime, string(attrsJSON))
		if err != nil {
			tx.Rollback()
			return newErr(classify(err), "SoftRemove.insert", err)
		}
		if err := s.removeTx(ctx, tx, id, nil, true); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return newErr(classify(err), "SoftRemove.commit", err)
		}
		return nil
	})
}

// softRMFields projects a onto the always-included POSIX stat + fullpath
// fields. A policy-configurable extension would add more indices here;
// the core always keeps at least this much for recovery.
func softRMFields(a *attrs.AttrSet) map[string]any {
	out := map[string]any{}
	for _, idx := range []attrs.AttrIndex{attrs.ATTR_size, attrs.ATTR_mode, attrs.ATTR_uid, attrs.ATTR_gid, attrs.ATTR_last_mod, attrs.ATTR_fullpath} {
		if v, ok := a.Get(idx); ok {
			meta, _ := attrs.Meta(idx)
			switch v.Kind {
			case attrs.KindText:
				out[meta.Name] = v.Str
			case attrs.KindUint, attrs.KindBiguint:
				out[meta.Name] = v.Uint
			default:
				out[meta.Name] = v.Int
			}
		}
	}
	return out
}

// --- GetVar / SetVar -----------------------------------------------------

func (s *SQLStore) GetVar(ctx context.Context, name string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM variables_table WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return "", newErr(NotFound, "GetVar", err)
	}
	if err != nil {
		return "", newErr(classify(err), "GetVar", err)
	}
	return v, nil
}

func (s *SQLStore) SetVar(ctx context.Context, name, value string) error {
	q := `INSERT INTO variables_table (name, value) VALUES (?,?) ` +
		s.conflictClause("name") + " " + s.assignExcluded("value")
	_, err := s.db.ExecContext(ctx, q, name, value)
	if err != nil {
		return newErr(classify(err), "SetVar", err)
	}
	return nil
}

// --- Children ------------------------------------------------------------

func (s *SQLStore) Children(ctx context.Context, parent ids.ID, filter Filter, mask attrs.AttrMask) ([]ids.ID, []*attrs.AttrSet, error) {
	where, args := buildWhere(filter, "main_table")
	joinedWhere := strings.Replace(where, "WHERE", "AND", 1)
	joins := " JOIN names_table ON names_table.id = main_table.id"
	if filterTouchesTable(filter, "annex_table") {
		joins += " LEFT JOIN annex_table ON annex_table.id = main_table.id"
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT main_table.id FROM main_table%s
		WHERE names_table.parent_id = ? %s`, joins, joinedWhere)
	rows, err := s.db.QueryContext(ctx, query, append([]any{parent.String()}, args...)...)
	if err != nil {
		return nil, nil, newErr(classify(err), "Children", err)
	}
	defer rows.Close()

	var outIDs []ids.ID
	var outSets []*attrs.AttrSet
	for rows.Next() {
		var idText string
		if err := rows.Scan(&idText); err != nil {
			return nil, nil, newErr(classify(err), "Children.scan", err)
		}
		id, err := s.parseID(idText)
		if err != nil {
			return nil, nil, newErr(InvalidArg, "Children.parseID", err)
		}
		a, err := s.Get(ctx, id, mask)
		if err != nil {
			continue
		}
		outIDs = append(outIDs, id)
		outSets = append(outSets, a)
	}
	return outIDs, outSets, nil
}

// --- tags ------------------------------------------------------------

func tagTableName(tag string) string {
	return "tag_" + strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, tag)
}

func (s *SQLStore) CreateTag(ctx context.Context, tag string, filter Filter, reset bool) error {
	table := tagTableName(tag)
	if reset {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return newErr(classify(err), "CreateTag.drop", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id %s PRIMARY KEY)`, table, idColumnType(s.cfg.Driver))); err != nil {
		return newErr(classify(err), "CreateTag.create", err)
	}
	where, args := buildWhere(filter, "main_table")
	insert := fmt.Sprintf(`INSERT INTO %s (id) SELECT DISTINCT main_table.id FROM main_table%s %s`,
		table, mainJoins(filter), where)
	if _, err := s.db.ExecContext(ctx, insert, args...); err != nil {
		return newErr(classify(err), "CreateTag.populate", err)
	}
	return nil
}

func (s *SQLStore) TagEntry(ctx context.Context, tag string, id ids.ID) error {
	table := tagTableName(tag)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id.String())
	if err != nil {
		return newErr(classify(err), "TagEntry", err)
	}
	return nil
}

func (s *SQLStore) ListUntagged(ctx context.Context, tag string) ([]ids.ID, error) {
	table := tagTableName(tag)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s`, table))
	if err != nil {
		return nil, newErr(classify(err), "ListUntagged", err)
	}
	defer rows.Close()
	var out []ids.ID
	for rows.Next() {
		var idText string
		if err := rows.Scan(&idText); err != nil {
			return nil, newErr(classify(err), "ListUntagged.scan", err)
		}
		id, err := s.parseID(idText)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *SQLStore) DestroyTag(ctx context.Context, tag string) error {
	table := tagTableName(tag)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table))
	if err != nil {
		return newErr(classify(err), "DestroyTag", err)
	}
	return nil
}

// newTempTableName names a per-call temp table with a random suffix,
// standing in for the source's pid+thread-id naming scheme.
func newTempTableName(prefix string) string {
	return fmt.Sprintf("tmp_%s_%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// --- BeginTx ------------------------------------------------------------

type sqlTx struct{ tx *sql.Tx }

func (t *sqlTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

func (s *SQLStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, newErr(classify(err), "BeginTx", err)
	}
	return &sqlTx{tx: tx}, nil
}
