// Package action executes a policy's configured command against one
// entry, either by shelling out (ShellExecutor) or, for dry runs and
// tests, doing nothing (NoopExecutor).
package action

import (
	"context"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// Status is the outcome of one action invocation.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
	StatusRunning // asynchronous action (e.g. HSM archive) still in flight
)

// Feedback carries the bytes/counters a completed action reports back,
// used to satisfy a trigger's work-limit counters.
type Feedback struct {
	Volume uint64
	Blocks uint64
}

// Params is one action invocation's template parameters.
type Params struct {
	Command string
	Args    map[string]string
	Timeout int64 // seconds; 0 selects the executor's default timeout
}

// Executor runs a policy action against one entry. Implementations must
// never hold a listmgr session across the call.
type Executor interface {
	Execute(ctx context.Context, id ids.ID, a *attrs.AttrSet, p Params) (Status, Feedback, error)
}
