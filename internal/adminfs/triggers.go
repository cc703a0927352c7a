package adminfs

import (
	"context"
	"fmt"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// triggersDir lists one subdirectory per configured trigger, each
// holding a "status" file rendering that trigger's live TriggerInfo.
type triggersDir struct {
	fs.Inode
	root *Root
}

var _ = (fs.NodeReaddirer)((*triggersDir)(nil))
var _ = (fs.NodeLookuper)((*triggersDir)(nil))

func (d *triggersDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	if d.root.Scheduler != nil {
		for _, t := range d.root.Scheduler.Triggers {
			entries = append(entries, fuse.DirEntry{Name: t.Name, Mode: fuseDirMode})
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *triggersDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if d.root.Scheduler == nil {
		return nil, syscall.ENOENT
	}
	found := false
	for _, t := range d.root.Scheduler.Triggers {
		if t.Name == name {
			found = true
			break
		}
	}
	if !found {
		return nil, syscall.ENOENT
	}
	sub := &triggerDir{root: d.root, name: name}
	return d.NewInode(ctx, sub, fs.StableAttr{Mode: fuseDirMode}), fs.OK
}

// triggerDir is one trigger's subdirectory, holding its "status" file.
type triggerDir struct {
	fs.Inode
	root *Root
	name string
}

var _ = (fs.NodeReaddirer)((*triggerDir)(nil))
var _ = (fs.NodeLookuper)((*triggerDir)(nil))

func (d *triggerDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{{Name: "status", Mode: fuse.S_IFREG}}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *triggerDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if name != "status" {
		return nil, syscall.ENOENT
	}
	file := newContentFile(func(ctx context.Context) ([]byte, error) {
		info := d.root.Scheduler.Info(d.name)
		return []byte(fmt.Sprintf(
			"name: %s\nstatus: %s\nlast_check: %s\nlast_ok: %d\nlast_nok: %d\ntotal_ok: %d\ntotal_nok: %d\n",
			d.name, info.Status, info.LastCheck.Format("2006-01-02T15:04:05Z07:00"),
			info.LastCtr.NbrOK, info.LastCtr.NbrNOK, info.TotalCtr.NbrOK, info.TotalCtr.NbrNOK,
		)), nil
	})
	return d.NewInode(ctx, file, fs.StableAttr{Mode: fuse.S_IFREG}), fs.OK
}
