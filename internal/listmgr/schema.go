package listmgr

import "fmt"

// idColumnType is the key-column type for textual entry ids: sqlite
// indexes TEXT directly, MySQL needs a bounded VARCHAR for any primary
// key. 64 matches the fid textual form's documented length bound.
func idColumnType(driver string) string {
	if driver == "mysql" {
		return "VARCHAR(64)"
	}
	return "TEXT"
}

// schemaStatements renders the self-bootstrapping schema for the given
// driver: on first connection every statement runs with IF NOT EXISTS,
// so repeated startups are idempotent (MySQL's CREATE INDEX lacks that
// clause; bootstrap tolerates its duplicate-index error instead).
// Status-plane and sm-info-plane attributes are dynamic (installed per
// status manager at runtime), so they are carried as a JSON column
// rather than one column per attribute — the same type-directed
// tagged-union approach the attrs package uses in memory, just pushed
// one layer further down into storage.
func schemaStatements(driver string) []string {
	idKey := idColumnType(driver)
	nameKey := "TEXT"
	acctKey := "TEXT"
	// MySQL parses neither CREATE INDEX IF NOT EXISTS nor TEXT keys;
	// bootstrap tolerates its duplicate-index error on re-runs instead.
	indexIfAbsent := "CREATE INDEX IF NOT EXISTS"
	if driver == "mysql" {
		nameKey = "VARCHAR(255)"
		acctKey = "VARCHAR(64)"
		indexIfAbsent = "CREATE INDEX"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS main_table (
			id %s PRIMARY KEY,
			size INTEGER,
			blocks INTEGER,
			mode INTEGER,
			type %s,
			uid INTEGER,
			gid INTEGER,
			last_access INTEGER,
			last_mod INTEGER,
			nlink INTEGER,
			dircount INTEGER,
			md_update INTEGER,
			status_json TEXT
		)`, idKey, acctKey),
		indexIfAbsent + ` idx_main_uid ON main_table(uid)`,
		indexIfAbsent + ` idx_main_gid ON main_table(gid)`,
		indexIfAbsent + ` idx_main_type ON main_table(type)`,
		indexIfAbsent + ` idx_main_md_update ON main_table(md_update)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS annex_table (
			id %s PRIMARY KEY,
			creation_time INTEGER,
			link TEXT,
			stripe_info_json TEXT,
			stripe_items_json TEXT,
			sminfo_json TEXT
		)`, idKey),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS names_table (
			parent_id %s NOT NULL,
			name %s NOT NULL,
			id %s NOT NULL,
			depth INTEGER,
			path_update INTEGER,
			PRIMARY KEY (parent_id, name)
		)`, idKey, nameKey, idKey),
		indexIfAbsent + ` idx_names_id ON names_table(id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS softrm_table (
			id %s PRIMARY KEY,
			fullpath TEXT,
			rm_time INTEGER,
			attrs_json TEXT
		)`, idKey),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS accounting_table (
			uid %s NOT NULL,
			gid %s NOT NULL,
			type %s NOT NULL,
			status %s NOT NULL DEFAULT '',
			cnt INTEGER NOT NULL DEFAULT 0,
			size_sum INTEGER NOT NULL DEFAULT 0,
			blocks_sum INTEGER NOT NULL DEFAULT 0,
			histogram_json TEXT,
			PRIMARY KEY (uid, gid, type, status)
		)`, acctKey, acctKey, acctKey, acctKey),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS variables_table (
			name %s PRIMARY KEY,
			value TEXT
		)`, nameKey),
	}
}

// sizeHistogramBucket returns the index of the fixed size-range bucket
// (0, 1B-31B, 32B-1KB, 1KB-32KB, 32KB-1MB, ..., >=1TB) that size falls
// into, matching the ten-bucket layout used by both the accounting
// rollup and report profiles.
func sizeHistogramBucket(size uint64) int {
	bounds := []uint64{1, 32, 1 << 10, 32 << 10, 1 << 20, 32 << 20, 1 << 30, 32 << 30, 1 << 40}
	for i, b := range bounds {
		if size < b {
			return i
		}
	}
	return len(bounds)
}

const histogramBuckets = 10
