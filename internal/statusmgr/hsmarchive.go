package statusmgr

import (
	"context"

	"github.com/robinhood-fs/rbh/internal/action"
	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// HSMArchive delegates to an action.Executor to poll whether a
// previously launched archive action is still running, the concrete
// plug-in spec.md's "status manager" concept names for HSM-backed
// filesystems (supplemented from original_source, which ships an
// equivalent HSM-status check).
type HSMArchive struct {
	Executor action.Executor
	Params   action.Params
}

func NewHSMArchive(e action.Executor, checkCmd string) *HSMArchive {
	return &HSMArchive{Executor: e, Params: action.Params{Command: checkCmd}}
}

func (h *HSMArchive) Name() string { return "hsm_archive" }

func (h *HSMArchive) Scope() attrs.AttrMask {
	return attrs.MaskOf(attrs.ATTR_type)
}

func (h *HSMArchive) Compute(ctx context.Context, id ids.ID, a *attrs.AttrSet) (string, error) {
	st, _, err := h.Executor.Execute(ctx, id, a, h.Params)
	if err != nil {
		return "", err
	}
	switch st {
	case action.StatusRunning:
		return "archive_running", nil
	case action.StatusOK:
		return "archived", nil
	default:
		return "archive_failed", nil
	}
}
