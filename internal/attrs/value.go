package attrs

import (
	"fmt"

	"github.com/robinhood-fs/rbh/internal/ids"
)

// ValueKind discriminates the typed slot a Value occupies, mirroring the
// DBType of the attribute it holds.
type ValueKind int

const (
	KindText ValueKind = iota
	KindInt
	KindUint
	KindBigint
	KindBiguint
	KindBool
	KindEntryID
	KindStripeInfo
	KindStripeItems
)

// Value is a tagged union over every representation an attribute can
// take. Only the field matching Kind is meaningful.
type Value struct {
	Kind   ValueKind
	Str    string
	Int    int64
	Uint   uint64
	Bool   bool
	ID     ids.ID
	Stripe *StripeInfo
	Items  StripeItems
}

func StrValue(s string) Value    { return Value{Kind: KindText, Str: s} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func UintValue(u uint64) Value   { return Value{Kind: KindUint, Uint: u} }
func BigintValue(i int64) Value  { return Value{Kind: KindBigint, Int: i} }
func BiguintValue(u uint64) Value { return Value{Kind: KindBiguint, Uint: u} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func EntryIDValue(id ids.ID) Value { return Value{Kind: KindEntryID, ID: id} }

// AttrSet carries both attribute values and a mask telling which fields
// are valid. Reading a slot whose bit is clear is a programmer error and
// Get reports it via its second return value rather than panicking.
type AttrSet struct {
	Mask   AttrMask
	values map[AttrIndex]Value
}

// NewAttrSet returns an empty AttrSet ready for Set calls.
func NewAttrSet() *AttrSet {
	return &AttrSet{values: make(map[AttrIndex]Value)}
}

// Set stores v under idx and sets idx's bit in the mask.
func (a *AttrSet) Set(idx AttrIndex, v Value) {
	if a.values == nil {
		a.values = make(map[AttrIndex]Value)
	}
	a.values[idx] = v
	a.Mask = a.Mask.Set(idx)
}

// Unset clears idx from both the value table and the mask.
func (a *AttrSet) Unset(idx AttrIndex) {
	delete(a.values, idx)
	a.Mask = a.Mask.Unset(idx)
}

// Get returns the value stored for idx and whether its bit is set in the
// mask. A generated field with no stored value is computed on demand from
// its source attribute when possible.
func (a *AttrSet) Get(idx AttrIndex) (Value, bool) {
	if a.Mask.Test(idx) {
		v, ok := a.values[idx]
		if ok {
			return v, true
		}
	}
	meta, ok := Meta(idx)
	if ok && meta.Flags&FlagGenerated != 0 && meta.Generate != nil {
		if meta.HasSource && !a.Mask.Test(meta.Source) {
			return Value{}, false
		}
		return meta.Generate(a)
	}
	return Value{}, false
}

// Clone deep-copies the set's value table (Values are themselves
// immutable so a shallow copy of each entry suffices).
func (a *AttrSet) Clone() *AttrSet {
	out := NewAttrSet()
	out.Mask = a.Mask
	for k, v := range a.values {
		out.values[k] = v
	}
	return out
}

// Project returns a new AttrSet containing only the bits set in both a's
// mask and keep, used to narrow a full fetch down to a requested subset.
func (a *AttrSet) Project(keep AttrMask) *AttrSet {
	out := NewAttrSet()
	m := And(a.Mask, keep)
	for _, idx := range m.Indices() {
		if v, ok := a.values[idx]; ok {
			out.Set(idx, v)
		}
	}
	return out
}

// Diff returns the mask of fields present in both fsAttrs and dbAttrs
// whose stored Value differs, used by REPORT_DIFF to narrow the write
// set down to what actually changed.
func Diff(fsAttrs, dbAttrs *AttrSet) AttrMask {
	common := And(fsAttrs.Mask, dbAttrs.Mask)
	var diff AttrMask
	for _, idx := range common.Indices() {
		fv, _ := fsAttrs.Get(idx)
		dv, _ := dbAttrs.Get(idx)
		if !valuesEqual(fv, dv) {
			diff = diff.Set(idx)
		}
	}
	return diff
}

func isSignedKind(k ValueKind) bool   { return k == KindInt || k == KindBigint }
func isUnsignedKind(k ValueKind) bool { return k == KindUint || k == KindBiguint }

func valuesEqual(a, b Value) bool {
	// int/bigint and uint/biguint only differ in column width; a value
	// read back from storage must compare equal to the one written.
	if isSignedKind(a.Kind) && isSignedKind(b.Kind) {
		return a.Int == b.Int
	}
	if isUnsignedKind(a.Kind) && isUnsignedKind(b.Kind) {
		return a.Uint == b.Uint
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindText:
		return a.Str == b.Str
	case KindEntryID:
		if a.ID == nil || b.ID == nil {
			return a.ID == b.ID
		}
		return a.ID.Equal(b.ID)
	case KindBool:
		return a.Bool == b.Bool
	default:
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
}
