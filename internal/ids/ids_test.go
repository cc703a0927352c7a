package ids

import "testing"

func TestFidRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []FidID{
		{Seq: 0x200000401, Oid: 0x1, Ver: 0x0},
		{Seq: 0, Oid: 0, Ver: 0},
		{Seq: 0xffffffffffffffff, Oid: 0xffffffff, Ver: 0xffffffff},
	}
	for _, want := range cases {
		s := want.String()
		if s == "" {
			t.Fatalf("String() produced empty string for %+v", want)
		}
		got, err := ParseFid(s)
		if err != nil {
			t.Fatalf("ParseFid(%q) error: %v", s, err)
		}
		if !got.Equal(want) {
			t.Errorf("ParseFid(%q) = %+v, want %+v", s, got, want)
		}
	}
}

func TestDevInoRoundTrip(t *testing.T) {
	t.Parallel()
	want := DevInoID{Dev: 0x801, Ino: 123456, Ctime: 1700000000}
	s := want.String()
	if s == "" {
		t.Fatal("String() produced empty string")
	}
	got, err := ParseDevIno(s)
	if err != nil {
		t.Fatalf("ParseDevIno(%q) error: %v", s, err)
	}
	if !got.Equal(want) {
		t.Errorf("ParseDevIno(%q) = %+v, want %+v", s, got, want)
	}
}

func TestDevInoDistinctGenerationsNotEqual(t *testing.T) {
	t.Parallel()
	a := DevInoID{Dev: 1, Ino: 2, Ctime: 100}
	b := DevInoID{Dev: 1, Ino: 2, Ctime: 200}
	if a.Equal(b) {
		t.Error("DevInoIDs with different Ctime should not be equal")
	}
}

func TestEqualAcrossKinds(t *testing.T) {
	t.Parallel()
	f := FidID{Seq: 1, Oid: 1, Ver: 0}
	d := DevInoID{Dev: 1, Ino: 1, Ctime: 0}
	if f.Equal(d) || d.Equal(f) {
		t.Error("ids of different kinds must never compare equal")
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()
	if _, err := ParseFid("not-a-fid"); err == nil {
		t.Error("ParseFid on malformed input should error")
	}
	if _, err := ParseFid("1:2"); err == nil {
		t.Error("ParseFid with wrong field count should error")
	}
	if _, err := ParseDevIno("zz:1:1"); err == nil {
		t.Error("ParseDevIno with non-hex field should error")
	}
}
