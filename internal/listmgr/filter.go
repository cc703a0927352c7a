package listmgr

import (
	"fmt"
	"strings"

	"github.com/robinhood-fs/rbh/internal/attrs"
)

// columnFor maps an AttrIndex to its SQL column name and owning table,
// for filter and report composition. Status/sm-info attributes are not
// directly filterable as plain columns since they live inside a JSON
// envelope; callers must pre-filter those in application code.
func columnFor(idx attrs.AttrIndex) (table, column string, ok bool) {
	meta, exists := attrs.Meta(idx)
	if !exists {
		return "", "", false
	}
	switch meta.Plane {
	case attrs.PlaneStatus, attrs.PlaneSMInfo:
		return "", "", false
	}
	switch idx {
	case attrs.ATTR_name, attrs.ATTR_parent_id, attrs.ATTR_depth, attrs.ATTR_path_update:
		return "names_table", meta.Name, true
	case attrs.ATTR_creation_time, attrs.ATTR_link:
		return "annex_table", meta.Name, true
	case attrs.ATTR_stripe_info, attrs.ATTR_stripe_items:
		// stored as JSON envelopes, not plain columns.
		return "annex_table", meta.Name + "_json", true
	default:
		return "main_table", meta.Name, true
	}
}

func opSQL(op CompareOp) string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLike:
		return "LIKE"
	default:
		return "="
	}
}

func valueArg(v attrs.Value) any {
	switch v.Kind {
	case attrs.KindText:
		return v.Str
	case attrs.KindInt, attrs.KindBigint:
		return v.Int
	case attrs.KindUint, attrs.KindBiguint:
		return v.Uint
	case attrs.KindBool:
		return v.Bool
	case attrs.KindEntryID:
		if v.ID != nil {
			return v.ID.String()
		}
		return nil
	default:
		return nil
	}
}

// buildWhere renders filter as a "WHERE ..." clause (or "" if empty)
// against the given default table alias, with positional '?' placeholders
// and their bound arguments.
func buildWhere(f Filter, defaultTable string) (string, []any) {
	if f.IsEmpty() {
		return "", nil
	}
	var clauses []string
	var args []any
	for _, c := range f.Clauses {
		table, col, ok := columnFor(c.Attr)
		if !ok {
			continue
		}
		alias := defaultTable
		if table != defaultTable && table != "main_table" {
			// cross-table filter; caller is responsible for joining.
			alias = table
		}
		clauses = append(clauses, fmt.Sprintf("%s.%s %s ?", alias, col, opSQL(c.Op)))
		args = append(args, valueArg(c.Value))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// touchesOnlyTable reports whether every clause in f resolves to a column in
// the named table (used by MassRemove's fast-path detection).
func touchesOnlyTable(f Filter, table string) bool {
	if f.IsEmpty() {
		return false
	}
	for _, c := range f.Clauses {
		t, _, ok := columnFor(c.Attr)
		if !ok || t != table {
			return false
		}
	}
	return true
}
