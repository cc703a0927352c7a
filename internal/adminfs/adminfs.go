// Package adminfs exposes a live, read-only view of a running instance
// as a FUSE filesystem: /triggers/<name>/status, /scan/stats,
// /reports/<name>.csv and /tags/<name>, readable with any tool that
// reads files (cat, tail -f, a monitoring agent) instead of a bespoke
// RPC client.
package adminfs

import (
	"context"
	"fmt"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/robinhood-fs/rbh/internal/listmgr"
	"github.com/robinhood-fs/rbh/internal/policy"
	"github.com/robinhood-fs/rbh/internal/scanner"
)

const fuseDirMode = fuse.S_IFDIR | 0555

// Root is the admin view's root inode.
type Root struct {
	fs.Inode

	Scheduler *policy.Scheduler
	Scanner   *scanner.Scanner
	Store     listmgr.Store
}

// NewRoot builds an admin view over a running scheduler/scanner/store.
// Any of the three may be nil; the corresponding subtree is simply
// empty.
func NewRoot(sched *policy.Scheduler, scn *scanner.Scanner, store listmgr.Store) *Root {
	return &Root{Scheduler: sched, Scanner: scn, Store: store}
}

// Mount mounts the admin view read-only at mountpoint.
func (r *Root) Mount(mountpoint string) (*fuse.Server, error) {
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:     "rbh-admin",
			FsName:   "rbh-admin",
			Options:  []string{"ro"},
		},
	}
	server, err := fs.Mount(mountpoint, r, opts)
	if err != nil {
		return nil, fmt.Errorf("adminfs: mount failed: %w", err)
	}
	return server, nil
}

var _ = (fs.NodeReaddirer)((*Root)(nil))
var _ = (fs.NodeLookuper)((*Root)(nil))

func (r *Root) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{
		{Name: "triggers", Mode: fuseDirMode},
		{Name: "scan", Mode: fuseDirMode},
		{Name: "reports", Mode: fuseDirMode},
		{Name: "tags", Mode: fuseDirMode},
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	var node fs.InodeEmbedder
	switch name {
	case "triggers":
		node = &triggersDir{root: r}
	case "scan":
		node = &scanDir{root: r}
	case "reports":
		node = &reportsDir{root: r}
	case "tags":
		node = &tagsDir{root: r}
	default:
		return nil, syscall.ENOENT
	}
	return r.NewInode(ctx, node, fs.StableAttr{Mode: fuseDirMode}), fs.OK
}
