package adminfs

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// contentFile is a read-only virtual file whose bytes are produced by
// Generate on every Open, mirroring the teacher's pattern of
// regenerating a file's body from live state rather than caching it.
type contentFile struct {
	fs.Inode
	Generate func(ctx context.Context) ([]byte, error)

	content []byte
}

var _ = (fs.NodeOpener)((*contentFile)(nil))
var _ = (fs.NodeReader)((*contentFile)(nil))
var _ = (fs.NodeGetattrer)((*contentFile)(nil))

func (n *contentFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	body, err := n.Generate(ctx)
	if err != nil {
		return nil, 0, syscall.EIO
	}
	n.content = body
	return nil, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (n *contentFile) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if n.content == nil {
		body, err := n.Generate(ctx)
		if err != nil {
			return nil, syscall.EIO
		}
		n.content = body
	}
	if off >= int64(len(n.content)) {
		return fuse.ReadResultData(nil), fs.OK
	}
	end := int(off) + len(dest)
	if end > len(n.content) {
		end = len(n.content)
	}
	return fuse.ReadResultData(n.content[off:end]), fs.OK
}

func (n *contentFile) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if n.content == nil {
		body, err := n.Generate(ctx)
		if err != nil {
			return syscall.EIO
		}
		n.content = body
	}
	out.Mode = fuse.S_IFREG | 0444
	out.Size = uint64(len(n.content))
	out.Mtime = uint64(time.Now().Unix())
	return fs.OK
}

func newContentFile(generate func(ctx context.Context) ([]byte, error)) *contentFile {
	return &contentFile{Generate: generate}
}
