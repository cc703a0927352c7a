package attrs

// AttrMask is a set of AttrIndex values represented as three independent
// bitfield planes (std, status, sm_info), matching the data model's
// three-family attribute space. Each plane is capped at 64 bits, which
// comfortably covers the 22-entry std enum and any realistic number of
// installed status managers.
type AttrMask struct {
	std     uint64
	status  uint64
	smInfo  uint64
}

// Empty is the zero mask.
var Empty = AttrMask{}

func planeWord(m AttrMask, p Plane) uint64 {
	switch p {
	case PlaneStd:
		return m.std
	case PlaneStatus:
		return m.status
	case PlaneSMInfo:
		return m.smInfo
	}
	return 0
}

func setPlaneWord(m *AttrMask, p Plane, w uint64) {
	switch p {
	case PlaneStd:
		m.std = w
	case PlaneStatus:
		m.status = w
	case PlaneSMInfo:
		m.smInfo = w
	}
}

// Set returns a copy of m with idx's bit set.
func (m AttrMask) Set(idx AttrIndex) AttrMask {
	meta, ok := Meta(idx)
	if !ok {
		return m
	}
	setPlaneWord(&m, meta.Plane, planeWord(m, meta.Plane)|(1<<uint(meta.PlaneBit)))
	return m
}

// Unset returns a copy of m with idx's bit cleared. Setting then unsetting
// an index is always a no-op relative to the starting mask.
func (m AttrMask) Unset(idx AttrIndex) AttrMask {
	meta, ok := Meta(idx)
	if !ok {
		return m
	}
	setPlaneWord(&m, meta.Plane, planeWord(m, meta.Plane)&^(1<<uint(meta.PlaneBit)))
	return m
}

// Test reports whether idx's bit is set in m.
func (m AttrMask) Test(idx AttrIndex) bool {
	meta, ok := Meta(idx)
	if !ok {
		return false
	}
	return planeWord(m, meta.Plane)&(1<<uint(meta.PlaneBit)) != 0
}

// Or returns the union of a and b.
func Or(a, b AttrMask) AttrMask {
	return AttrMask{std: a.std | b.std, status: a.status | b.status, smInfo: a.smInfo | b.smInfo}
}

// And returns the intersection of a and b.
func And(a, b AttrMask) AttrMask {
	return AttrMask{std: a.std & b.std, status: a.status & b.status, smInfo: a.smInfo & b.smInfo}
}

// AndNot returns a with every bit also set in b cleared.
func AndNot(a, b AttrMask) AttrMask {
	return AttrMask{std: a.std &^ b.std, status: a.status &^ b.status, smInfo: a.smInfo &^ b.smInfo}
}

// IsNull reports whether m has no bits set in any plane.
func (m AttrMask) IsNull() bool {
	return m.std == 0 && m.status == 0 && m.smInfo == 0
}

// Equal reports whether a and b have identical bits in every plane.
func Equal(a, b AttrMask) bool {
	return a.std == b.std && a.status == b.status && a.smInfo == b.smInfo
}

// Indices returns every AttrIndex set in m, in no particular order (it
// ranges over the registry map). Intended
// for iteration over a small mask (diff computation, column building),
// not for hot loops.
func (m AttrMask) Indices() []AttrIndex {
	registryMu.RLock()
	defer registryMu.RUnlock()
	var out []AttrIndex
	for idx, meta := range registry {
		if planeWord(m, meta.Plane)&(1<<uint(meta.PlaneBit)) != 0 {
			out = append(out, idx)
		}
	}
	return out
}

// MaskOf builds a mask containing exactly the given indices.
func MaskOf(idxs ...AttrIndex) AttrMask {
	var m AttrMask
	for _, idx := range idxs {
		m = m.Set(idx)
	}
	return m
}

// ReadOnlyFields returns the subset of m whose fields are flagged
// FlagReadOnly or FlagGenerated. listmgr rejects a FlagReadOnly bit on
// insert/update and skips generated fields (they have no column).
func ReadOnlyFields(m AttrMask) AttrMask {
	var ro AttrMask
	for _, idx := range m.Indices() {
		meta, ok := Meta(idx)
		if ok && meta.Flags&(FlagReadOnly|FlagGenerated) != 0 {
			ro = ro.Set(idx)
		}
	}
	return ro
}

// FieldsForFlag returns every registered AttrIndex carrying flag f,
// intersected with m. Used to project a mask onto a particular table
// (e.g. FlagMain) for batch-compatibility checks.
func FieldsForFlag(m AttrMask, f Flag) AttrMask {
	var out AttrMask
	for _, idx := range m.Indices() {
		meta, ok := Meta(idx)
		if ok && meta.Flags&f != 0 {
			out = out.Set(idx)
		}
	}
	return out
}

// BatchCompatible reports whether two masks can be combined into a single
// batch_insert/batch_update call: for every table flag T, either the two
// masks' projections onto T are equal, or one of them is empty.
func BatchCompatible(a, b AttrMask) bool {
	for _, tableFlag := range []Flag{FlagMain, FlagAnnex, FlagDnames} {
		pa := FieldsForFlag(a, tableFlag)
		pb := FieldsForFlag(b, tableFlag)
		if pa.IsNull() || pb.IsNull() {
			continue
		}
		if !Equal(pa, pb) {
			return false
		}
	}
	return true
}
