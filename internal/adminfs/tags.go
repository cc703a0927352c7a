package adminfs

import (
	"context"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// tagsDir exposes a virtual file per tag name, listing the ids still
// carrying it (listmgr.Store.ListUntagged), one per line. Tags aren't
// enumerable ahead of time, so only Lookup is supported; Readdir shows
// an empty directory.
type tagsDir struct {
	fs.Inode
	root *Root
}

var _ = (fs.NodeReaddirer)((*tagsDir)(nil))
var _ = (fs.NodeLookuper)((*tagsDir)(nil))

func (d *tagsDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	return fs.NewListDirStream(nil), fs.OK
}

func (d *tagsDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if d.root.Store == nil {
		return nil, syscall.ENOENT
	}
	file := newContentFile(func(ctx context.Context) ([]byte, error) {
		ids, err := d.root.Store.ListUntagged(ctx, name)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		for _, id := range ids {
			b.WriteString(id.String())
			b.WriteByte('\n')
		}
		return []byte(b.String()), nil
	})
	return d.NewInode(ctx, file, fs.StableAttr{Mode: fuse.S_IFREG}), fs.OK
}
