package attrs

import "testing"

func TestAttrSetGetSet(t *testing.T) {
	t.Parallel()
	a := NewAttrSet()
	a.Set(ATTR_size, UintValue(1024))

	v, ok := a.Get(ATTR_size)
	if !ok {
		t.Fatal("Get should return true for a set field")
	}
	if v.Uint != 1024 {
		t.Errorf("Get(size) = %d, want 1024", v.Uint)
	}

	if _, ok := a.Get(ATTR_uid); ok {
		t.Error("Get on an unset field should return false")
	}
}

func TestAttrSetProject(t *testing.T) {
	t.Parallel()
	a := NewAttrSet()
	a.Set(ATTR_size, UintValue(1))
	a.Set(ATTR_uid, UintValue(1000))

	projected := a.Project(MaskOf(ATTR_size))
	if !projected.Mask.Test(ATTR_size) {
		t.Error("projected set should retain the requested field")
	}
	if projected.Mask.Test(ATTR_uid) {
		t.Error("projected set should drop fields outside the keep mask")
	}
}

func TestDiffNarrowsToChangedFields(t *testing.T) {
	t.Parallel()
	db := NewAttrSet()
	db.Set(ATTR_size, UintValue(1024))
	db.Set(ATTR_last_mod, IntValue(1700000000))
	db.Set(ATTR_uid, UintValue(1000))

	fs := NewAttrSet()
	fs.Set(ATTR_size, UintValue(2048))
	fs.Set(ATTR_last_mod, IntValue(1700000200))
	fs.Set(ATTR_uid, UintValue(1000))

	diff := Diff(fs, db)
	if !diff.Test(ATTR_size) || !diff.Test(ATTR_last_mod) {
		t.Error("diff should include size and last_mod, which changed")
	}
	if diff.Test(ATTR_uid) {
		t.Error("diff should not include uid, which is unchanged")
	}
}

func TestAttrSetClone(t *testing.T) {
	t.Parallel()
	a := NewAttrSet()
	a.Set(ATTR_size, UintValue(1))

	b := a.Clone()
	b.Set(ATTR_uid, UintValue(2))

	if a.Mask.Test(ATTR_uid) {
		t.Error("mutating the clone should not affect the original")
	}
}
