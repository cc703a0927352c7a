// Package lustre isolates the Lustre-specific syscalls (path2fid, OST
// and pool usage, stripe queries) behind an interface so a non-Lustre
// build still compiles and runs against a plain POSIX tree, with every
// Lustre-only operation reporting NotSupported.
package lustre

import (
	"context"
	"errors"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// ErrNotSupported is returned by every method of the default
// implementation; a real build swaps in a Lustre-backed Lustre value.
var ErrNotSupported = errors.New("lustre: not supported on this build")

// OSTUsage is one OST's used/total block and inode counts.
type OSTUsage struct {
	Index        uint32
	Pool         string
	BlocksUsed   uint64
	BlocksTotal  uint64
	InodesUsed   uint64
	InodesTotal  uint64
}

// Lustre is the Lustre-specific operation surface PolicyScheduler and
// the scanner use when running against a real Lustre client mount.
type Lustre interface {
	// PathToFid resolves path to a stable FidID via llapi_path2fid.
	PathToFid(ctx context.Context, path string) (ids.ID, error)
	// OSTUsages lists per-OST usage for the pools named (all pools if
	// names is empty), in decreasing-usage order.
	OSTUsages(ctx context.Context, names []string) ([]OSTUsage, error)
	// StripeInfo reads an entry's stripe layout.
	StripeInfo(ctx context.Context, path string) (attrs.StripeInfo, attrs.StripeItems, error)
}

// NotSupported is the default Lustre implementation for non-Lustre
// builds and for plain POSIX test fixtures.
type NotSupported struct{}

func (NotSupported) PathToFid(ctx context.Context, path string) (ids.ID, error) {
	return nil, ErrNotSupported
}

func (NotSupported) OSTUsages(ctx context.Context, names []string) ([]OSTUsage, error) {
	return nil, ErrNotSupported
}

func (NotSupported) StripeInfo(ctx context.Context, path string) (attrs.StripeInfo, attrs.StripeItems, error) {
	return attrs.StripeInfo{}, nil, ErrNotSupported
}
