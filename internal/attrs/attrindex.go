// Package attrs implements the closed attribute enum (AttrIndex), the
// three-plane bitmask over it (AttrMask), and the typed value table that
// carries attribute values alongside their mask (AttrSet).
package attrs

import "sync"

// Plane identifies which of the three independent bitmask planes an
// AttrIndex belongs to. std is the fixed 22-entry enum; status and
// sm_info are extended at runtime as status managers register.
type Plane int

const (
	PlaneStd Plane = iota
	PlaneStatus
	PlaneSMInfo
)

// AttrIndex is a closed enum entry over the standard attribute set, or a
// runtime-registered status/sm-info attribute. Values are stable for the
// lifetime of a process but are not guaranteed stable across restarts
// when status managers are added or removed.
type AttrIndex int

// Standard attributes, in four families:
// inode fields, namespace fields, bookkeeping, and Lustre-specific.
const (
	ATTR_size AttrIndex = iota
	ATTR_blocks
	ATTR_mode
	ATTR_type
	ATTR_uid
	ATTR_gid
	ATTR_last_access
	ATTR_last_mod
	ATTR_creation_time
	ATTR_nlink

	ATTR_name
	ATTR_parent_id
	ATTR_fullpath
	ATTR_depth
	ATTR_dircount

	ATTR_md_update
	ATTR_path_update
	ATTR_rm_time
	ATTR_invalid

	ATTR_stripe_info
	ATTR_stripe_items
	ATTR_link

	stdAttrCount
)

// EntryType enumerates the values of ATTR_type.
type EntryType string

const (
	TypeFile    EntryType = "file"
	TypeDir     EntryType = "dir"
	TypeSymlink EntryType = "symlink"
	TypeSpecial EntryType = "special"
)

// DBType is the typed database representation of a field, used both to
// drive column DDL and to pick the right slot in an AttrSet's value table.
type DBType int

const (
	DBText DBType = iota
	DBFid
	DBInt
	DBUint
	DBShort
	DBUshort
	DBBigint
	DBBiguint
	DBBool
	DBEnumString
	DBStripeInfo
	DBStripeItems
)

// Flag is a bitset of per-field behavioral properties.
type Flag uint32

const (
	FlagMain Flag = 1 << iota
	FlagAnnex
	FlagDnames
	FlagGenerated
	FlagIndexed
	FlagFreqAccess
	FlagDirAttr
	FlagRemoved
	FlagSepdList
	FlagFuncAttr
	FlagReadOnly
	FlagInitOnly
)

// GeneratorFunc computes a generated field's value from the AttrSet that
// holds its source attribute. It returns ok=false if the source attribute
// is not present in the set.
type GeneratorFunc func(*AttrSet) (Value, bool)

// FieldMeta is the static metadata attached to every AttrIndex.
type FieldMeta struct {
	Index AttrIndex
	Name  string // database column name
	Plane Plane
	// PlaneBit is this field's bit position within its Plane's mask word;
	// distinct from Index, which is a globally unique identifier used only
	// to key the metadata registry.
	PlaneBit  int
	DBType    DBType
	Flags     Flag
	Source    AttrIndex     // for FlagGenerated fields, the attribute it derives from
	Generate  GeneratorFunc // for FlagGenerated fields, the computation
	HasSource bool
}

var (
	registryMu   sync.RWMutex
	registry     = map[AttrIndex]FieldMeta{}
	byName       = map[string]AttrIndex{}
	nextStatusID = AttrIndex(1 << 16)
	nextSMInfoID = AttrIndex(1 << 17)
	nextStatusBit int
	nextSMInfoBit int
)

// register installs m, assigning a std-plane bit equal to its Index (the
// std enum is iota-sequential and small, so index doubles as bit position).
func register(m FieldMeta) AttrIndex {
	registryMu.Lock()
	defer registryMu.Unlock()
	if m.Plane == PlaneStd {
		m.PlaneBit = int(m.Index)
	}
	registry[m.Index] = m
	byName[m.Name] = m.Index
	return m.Index
}

func init() {
	std := []FieldMeta{
		{Index: ATTR_size, Name: "size", DBType: DBBiguint, Flags: FlagMain | FlagFreqAccess | FlagIndexed},
		{Index: ATTR_blocks, Name: "blocks", DBType: DBBiguint, Flags: FlagMain | FlagFreqAccess},
		{Index: ATTR_mode, Name: "mode", DBType: DBUint, Flags: FlagMain},
		{Index: ATTR_type, Name: "type", DBType: DBEnumString, Flags: FlagMain | FlagIndexed},
		{Index: ATTR_uid, Name: "uid", DBType: DBUint, Flags: FlagMain | FlagIndexed},
		{Index: ATTR_gid, Name: "gid", DBType: DBUint, Flags: FlagMain | FlagIndexed},
		{Index: ATTR_last_access, Name: "last_access", DBType: DBBigint, Flags: FlagMain | FlagFreqAccess},
		{Index: ATTR_last_mod, Name: "last_mod", DBType: DBBigint, Flags: FlagMain | FlagFreqAccess},
		{Index: ATTR_creation_time, Name: "creation_time", DBType: DBBigint, Flags: FlagAnnex | FlagInitOnly},
		{Index: ATTR_nlink, Name: "nlink", DBType: DBUint, Flags: FlagMain},

		{Index: ATTR_name, Name: "name", DBType: DBText, Flags: FlagDnames},
		{Index: ATTR_parent_id, Name: "parent_id", DBType: DBFid, Flags: FlagDnames | FlagIndexed},
		{Index: ATTR_fullpath, Name: "fullpath", DBType: DBText, Flags: FlagGenerated | FlagFuncAttr},
		{Index: ATTR_depth, Name: "depth", DBType: DBUint, Flags: FlagDnames | FlagDirAttr},
		{Index: ATTR_dircount, Name: "dircount", DBType: DBUint, Flags: FlagMain | FlagDirAttr},

		{Index: ATTR_md_update, Name: "md_update", DBType: DBBigint, Flags: FlagMain},
		{Index: ATTR_path_update, Name: "path_update", DBType: DBBigint, Flags: FlagDnames},
		{Index: ATTR_rm_time, Name: "rm_time", DBType: DBBigint, Flags: FlagAnnex},
		{Index: ATTR_invalid, Name: "invalid", DBType: DBBool, Flags: FlagMain | FlagGenerated},

		{Index: ATTR_stripe_info, Name: "stripe_info", DBType: DBStripeInfo, Flags: FlagAnnex | FlagInitOnly},
		{Index: ATTR_stripe_items, Name: "stripe_items", DBType: DBStripeItems, Flags: FlagAnnex | FlagInitOnly | FlagSepdList},
		{Index: ATTR_link, Name: "link", DBType: DBText, Flags: FlagAnnex},
	}
	for _, m := range std {
		m.Plane = PlaneStd
		register(m)
	}
	// fullpath and invalid are generated; wire their source + computation.
	registry[ATTR_fullpath] = withGenerator(registry[ATTR_fullpath], ATTR_parent_id, generateFullpath)
	registry[ATTR_invalid] = withGenerator(registry[ATTR_invalid], ATTR_mode, generateInvalid)
}

func withGenerator(m FieldMeta, src AttrIndex, fn GeneratorFunc) FieldMeta {
	m.Source = src
	m.Generate = fn
	m.HasSource = true
	return m
}

// Meta returns the static metadata for idx, and false if idx is unknown.
func Meta(idx AttrIndex) (FieldMeta, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m, ok := registry[idx]
	return m, ok
}

// ByName looks up an AttrIndex by its database column name.
func ByName(name string) (AttrIndex, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	idx, ok := byName[name]
	return idx, ok
}

// RegisterStatusAttr installs a new status-family attribute (one per
// installed status manager) and returns its AttrIndex. Safe to call from
// multiple status manager registrations at startup; not safe to call
// concurrently with attribute access.
func RegisterStatusAttr(name string) AttrIndex {
	registryMu.Lock()
	idx := nextStatusID
	nextStatusID++
	bit := nextStatusBit
	nextStatusBit++
	registryMu.Unlock()
	return register(FieldMeta{Index: idx, Name: name, Plane: PlaneStatus, PlaneBit: bit, DBType: DBEnumString, Flags: FlagMain})
}

// RegisterSMInfoAttr installs a new sm-info attribute (typed, owned by a
// status manager) and returns its AttrIndex.
func RegisterSMInfoAttr(name string, dbType DBType) AttrIndex {
	registryMu.Lock()
	idx := nextSMInfoID
	nextSMInfoID++
	bit := nextSMInfoBit
	nextSMInfoBit++
	registryMu.Unlock()
	return register(FieldMeta{Index: idx, Name: name, Plane: PlaneSMInfo, PlaneBit: bit, DBType: dbType, Flags: FlagAnnex})
}

// StdAttrs returns the AttrIndex of every registered standard field.
func StdAttrs() []AttrIndex {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]AttrIndex, 0, len(registry))
	for idx, m := range registry {
		if m.Plane == PlaneStd {
			out = append(out, idx)
		}
	}
	return out
}
