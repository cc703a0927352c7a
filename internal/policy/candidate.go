package policy

import (
	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// Candidate is one entry pulled off a trigger's rule∩scope iterator,
// queued for a pool worker to re-validate and act on.
type Candidate struct {
	ID    ids.ID
	Attrs *attrs.AttrSet
}
