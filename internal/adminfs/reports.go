package adminfs

import (
	"context"
	"fmt"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// reportsDir exposes one <trigger>.csv per configured trigger,
// rendering its lifetime counters as a one-row CSV.
type reportsDir struct {
	fs.Inode
	root *Root
}

var _ = (fs.NodeReaddirer)((*reportsDir)(nil))
var _ = (fs.NodeLookuper)((*reportsDir)(nil))

func (d *reportsDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	if d.root.Scheduler != nil {
		for _, t := range d.root.Scheduler.Triggers {
			entries = append(entries, fuse.DirEntry{Name: t.Name + ".csv", Mode: fuse.S_IFREG})
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *reportsDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if d.root.Scheduler == nil || !strings.HasSuffix(name, ".csv") {
		return nil, syscall.ENOENT
	}
	trigName := strings.TrimSuffix(name, ".csv")
	found := false
	for _, t := range d.root.Scheduler.Triggers {
		if t.Name == trigName {
			found = true
			break
		}
	}
	if !found {
		return nil, syscall.ENOENT
	}

	file := newContentFile(func(ctx context.Context) ([]byte, error) {
		info := d.root.Scheduler.Info(trigName)
		var b strings.Builder
		b.WriteString("trigger,status,nbr_ok,nbr_nok,vol_ok,blocks_ok\n")
		fmt.Fprintf(&b, "%s,%s,%d,%d,%d,%d\n",
			trigName, info.Status, info.TotalCtr.NbrOK, info.TotalCtr.NbrNOK,
			info.TotalCtr.VolOK, info.TotalCtr.BlocksOK)
		return []byte(b.String()), nil
	})
	return d.NewInode(ctx, file, fs.StableAttr{Mode: fuse.S_IFREG}), fs.OK
}
