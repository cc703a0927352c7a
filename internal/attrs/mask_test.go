package attrs

import "testing"

func TestMaskSetUnsetRoundTrip(t *testing.T) {
	t.Parallel()
	var m AttrMask
	m = m.Set(ATTR_size)
	if !m.Test(ATTR_size) {
		t.Fatal("Set then Test should report true")
	}
	m = m.Unset(ATTR_size)
	if m.Test(ATTR_size) {
		t.Fatal("Unset should clear the bit")
	}
	if !m.IsNull() {
		t.Fatal("mask should be null after set+unset of its only bit")
	}
}

func TestMaskAlgebra(t *testing.T) {
	t.Parallel()
	a := MaskOf(ATTR_size, ATTR_mode)
	b := MaskOf(ATTR_mode, ATTR_uid)

	// and_not(A, A) is null
	if !AndNot(a, a).IsNull() {
		t.Error("and_not(A, A) should be null")
	}

	// and(or(A,B), B) == B
	or := Or(a, b)
	got := And(or, b)
	if !Equal(got, b) {
		t.Errorf("and(or(A,B), B) = %+v, want %+v", got, b)
	}
}

func TestReadOnlyFieldsSuperset(t *testing.T) {
	t.Parallel()
	roMask := MaskOf(ATTR_invalid, ATTR_fullpath) // both generated
	any := MaskOf(ATTR_size)
	combined := Or(roMask, any)
	ro := ReadOnlyFields(combined)
	if !Equal(And(ro, roMask), roMask) {
		t.Errorf("readonly_fields(or(ro_mask, any)) should be a superset of ro_mask")
	}
}

func TestBatchCompatible(t *testing.T) {
	t.Parallel()
	a := MaskOf(ATTR_size, ATTR_name, ATTR_parent_id)
	b := MaskOf(ATTR_size, ATTR_uid)

	if BatchCompatible(a, b) {
		t.Error("A and B touch incompatible main-table projections and should not be batch-compatible")
	}

	aPrime := MaskOf(ATTR_size, ATTR_name, ATTR_parent_id)
	if !BatchCompatible(a, aPrime) {
		t.Error("two equal masks should always be batch-compatible")
	}
}

func TestIndicesRoundTrip(t *testing.T) {
	t.Parallel()
	want := MaskOf(ATTR_size, ATTR_uid, ATTR_gid)
	got := MaskOf(want.Indices()...)
	if !Equal(got, want) {
		t.Errorf("round-tripping via Indices() = %+v, want %+v", got, want)
	}
}
