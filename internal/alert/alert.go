// Package alert raises operator-facing warnings (threshold breaches,
// action failures) either immediately or batched for an end-of-scan
// summary.
package alert

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Alerter raises a titled alert with free-form detail.
type Alerter interface {
	Raise(title, detail string, args ...any)
	StartBatching()
	EndBatching()
}

// Entry is one raised alert, recorded while batching is active.
type Entry struct {
	Title  string
	Detail string
}

// Default logs each alert via zerolog at warn level; while batching is
// active, alerts are also appended to an in-memory slice and only
// flushed (as a single summary line) when EndBatching is called.
type Default struct {
	mu       sync.Mutex
	batching bool
	batch    []Entry
}

func NewDefault() *Default { return &Default{} }

func (d *Default) Raise(title, detail string, args ...any) {
	msg := detail
	if len(args) > 0 {
		msg = fmt.Sprintf(detail, args...)
	}
	d.mu.Lock()
	batching := d.batching
	if batching {
		d.batch = append(d.batch, Entry{Title: title, Detail: msg})
	}
	d.mu.Unlock()

	if !batching {
		log.Warn().Str("component", "alert").Str("title", title).Msg(msg)
	}
}

func (d *Default) StartBatching() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batching = true
	d.batch = d.batch[:0]
}

// EndBatching flushes every alert raised since StartBatching as a single
// warn-level summary and turns batching back off.
func (d *Default) EndBatching() {
	d.mu.Lock()
	entries := d.batch
	d.batch = nil
	d.batching = false
	d.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	ev := log.Warn().Str("component", "alert").Int("count", len(entries))
	for i, e := range entries {
		ev = ev.Str(fmt.Sprintf("alert_%d", i), e.Title+": "+e.Detail)
	}
	ev.Msg("batched alerts")
}

// Batch returns the alerts accumulated so far in the current batch, for
// tests.
func (d *Default) Batch() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Entry, len(d.batch))
	copy(out, d.batch)
	return out
}
