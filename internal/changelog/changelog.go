// Package changelog is a supplemental, low-latency event source:
// instead of waiting for the next full scan, a Reader turns filesystem
// change notifications into pipeline ops ready to skip straight to
// GET_INFO_DB.
package changelog

import (
	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// EventType enumerates the changelog record kinds this package
// understands.
type EventType string

const (
	EventCreate     EventType = "create"
	EventUnlink     EventType = "unlink"     // one hardlink removed
	EventUnlinkLast EventType = "unlink_last" // last hardlink removed
	EventRename     EventType = "rename"
	EventSetattr    EventType = "setattr"
)

// Event is one parsed changelog record.
type Event struct {
	Type     EventType
	ID       ids.ID
	Parent   ids.ID
	Name     string
	OldName  string
	OldParent ids.ID
	Attrs    *attrs.AttrSet
}

// Reader streams changelog events. Next blocks until an event is
// available or the reader is closed.
type Reader interface {
	Next() (Event, error)
	Close() error
}
