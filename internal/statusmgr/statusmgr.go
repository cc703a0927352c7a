// Package statusmgr registers pluggable status computations: a status
// manager derives a named status string from an entry's attrs (and,
// for HSMArchive, from an outstanding action's live state), consumed by
// GET_INFO_FS to stamp status attrs and by PolicyScheduler to build a
// rule's scope mask.
package statusmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/robinhood-fs/rbh/internal/action"
	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// Manager computes one status attribute.
type Manager interface {
	Name() string
	Compute(ctx context.Context, id ids.ID, a *attrs.AttrSet) (string, error)
	Scope() attrs.AttrMask
}

// Factory builds a Manager, e.g. from policy config.
type Factory func(cfg map[string]string) (Manager, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a status manager factory to the startup registry. Panics
// on a duplicate name, matching the package-init-time registration
// pattern used across the module for immutable lookup tables.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("statusmgr: duplicate registration for %q", name))
	}
	factories[name] = f
}

// New builds the named status manager from cfg.
func New(name string, cfg map[string]string) (Manager, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("statusmgr: no manager registered as %q", name)
	}
	return f(cfg)
}

func init() {
	Register("lifecycle", func(cfg map[string]string) (Manager, error) {
		return NewLifecycle(cfg["stale_after"]), nil
	})
	Register("hsm_archive", func(cfg map[string]string) (Manager, error) {
		return NewHSMArchive(action.NewShellExecutor(), cfg["check_command"]), nil
	})
}
