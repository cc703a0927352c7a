package adminfs

import (
	"context"
	"fmt"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// scanDir holds the single "stats" file reporting the running
// scanner's live counters.
type scanDir struct {
	fs.Inode
	root *Root
}

var _ = (fs.NodeReaddirer)((*scanDir)(nil))
var _ = (fs.NodeLookuper)((*scanDir)(nil))

func (d *scanDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{{Name: "stats", Mode: fuse.S_IFREG}}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *scanDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if name != "stats" {
		return nil, syscall.ENOENT
	}
	file := newContentFile(func(ctx context.Context) ([]byte, error) {
		if d.root.Scanner == nil {
			return []byte("scanner: not running\n"), nil
		}
		s := d.root.Scanner.Stats()
		return []byte(fmt.Sprintf(
			"entries_scanned: %d\ndirectories: %d\nerrors: %d\n",
			s.EntriesScanned.Load(), s.Directories.Load(), s.Errors.Load(),
		)), nil
	})
	return d.NewInode(ctx, file, fs.StableAttr{Mode: fuse.S_IFREG}), fs.OK
}
