// Package ids defines EntryId, the stable identity of a filesystem entry.
//
// Two realizations are supported, selected at build time by which
// constructor the caller uses: a filesystem-native identifier (FidID, for
// Lustre's sequence+oid+ver triples) and a synthetic (device, inode) pair
// guarded by a ctime validator for filesystems without a stable fid.
package ids

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ID is the stable identity of an entry. Implementations are immutable
// value types and must be comparable with ==.
type ID interface {
	// String renders a bijective textual form suitable as a database
	// primary key: Parse(id.String()) always yields an equal ID.
	String() string
	// Equal reports whether other denotes the same entry.
	Equal(other ID) bool
	kind() byte
}

// FidID is a Lustre-style file identifier: a 64-bit sequence, a 32-bit
// object id, and a 32-bit version/generation used to detect reuse.
type FidID struct {
	Seq uint64
	Oid uint32
	Ver uint32
}

func (f FidID) kind() byte { return 'f' }

// String renders the fid as "seq:oid:ver" in hex, matching the textual
// form Lustre tools print (llapi_fid2str), e.g. "0x200000401:0x1:0x0".
func (f FidID) String() string {
	return fmt.Sprintf("0x%x:0x%x:0x%x", f.Seq, f.Oid, f.Ver)
}

// Equal reports whether other is an equal FidID.
func (f FidID) Equal(other ID) bool {
	o, ok := other.(FidID)
	return ok && o == f
}

// DevInoID is a synthetic identifier for filesystems without stable fids:
// a (device, inode) pair plus a change-time validator. Two DevInoIDs with
// the same device/inode but different Ctime denote different generations
// of a reused inode number and must not be treated as equal.
type DevInoID struct {
	Dev   uint64
	Ino   uint64
	Ctime int64
}

func (d DevInoID) kind() byte { return 'd' }

// String renders the id as "dev:ino:ctime" in hex.
func (d DevInoID) String() string {
	return fmt.Sprintf("0x%x:0x%x:0x%x", d.Dev, d.Ino, uint64(d.Ctime))
}

// Equal reports whether other is an equal DevInoID, including Ctime.
func (d DevInoID) Equal(other ID) bool {
	o, ok := other.(DevInoID)
	return ok && o == d
}

// Parse parses the fid textual form. The two realizations render
// identically (three colon-separated hex fields), so the caller must
// pick the parser matching the realization it runs with — a DevInoID
// string fed through ParseFid decodes to a truncated, wrong-typed id.
// Deployments select the parser once, from configuration, and use it
// for every id column they read back.
func Parse(s string) (ID, error) {
	return ParseFid(s)
}

// ParseFid parses the "seq:oid:ver" textual form produced by FidID.String.
func ParseFid(s string) (ID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("ids: malformed fid %q: want 3 colon-separated fields", s)
	}
	seq, err := parseHexU64(parts[0])
	if err != nil {
		return nil, fmt.Errorf("ids: parse fid seq %q: %w", s, err)
	}
	oid, err := parseHexU64(parts[1])
	if err != nil {
		return nil, fmt.Errorf("ids: parse fid oid %q: %w", s, err)
	}
	ver, err := parseHexU64(parts[2])
	if err != nil {
		return nil, fmt.Errorf("ids: parse fid ver %q: %w", s, err)
	}
	return FidID{Seq: seq, Oid: uint32(oid), Ver: uint32(ver)}, nil
}

// ParseDevIno parses the "dev:ino:ctime" textual form produced by
// DevInoID.String.
func ParseDevIno(s string) (ID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("ids: malformed dev/ino id %q: want 3 colon-separated fields", s)
	}
	dev, err := parseHexU64(parts[0])
	if err != nil {
		return nil, fmt.Errorf("ids: parse dev %q: %w", s, err)
	}
	ino, err := parseHexU64(parts[1])
	if err != nil {
		return nil, fmt.Errorf("ids: parse ino %q: %w", s, err)
	}
	ctime, err := parseHexU64(parts[2])
	if err != nil {
		return nil, fmt.Errorf("ids: parse ctime %q: %w", s, err)
	}
	return DevInoID{Dev: dev, Ino: ino, Ctime: int64(ctime)}, nil
}

func parseHexU64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return strconv.ParseUint(s, 16, 64)
}

// Bytes renders the raw binary form of a FidID, used by callers that need
// a compact key rather than the textual primary-key form (e.g. hashing
// for the names table's name_hash column alongside an id).
func (f FidID) Bytes() []byte {
	b := make([]byte, 16)
	for i := 0; i < 8; i++ {
		b[i] = byte(f.Seq >> (56 - 8*i))
	}
	for i := 0; i < 4; i++ {
		b[8+i] = byte(f.Oid >> (24 - 8*i))
	}
	for i := 0; i < 4; i++ {
		b[12+i] = byte(f.Ver >> (24 - 8*i))
	}
	return b
}

// HexBytes is a convenience for logging raw ids without allocating a
// formatted string twice.
func HexBytes(b []byte) string { return hex.EncodeToString(b) }
