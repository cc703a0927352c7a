package changelog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// record is the on-disk shape of one changelog line: a JSON object with
// a generic attrs map, decoded into an attrs.AttrSet by record.toEvent.
type record struct {
	Type      string            `json:"type"`
	ID        string            `json:"id"`
	Parent    string            `json:"parent"`
	Name      string            `json:"name"`
	OldName   string            `json:"old_name"`
	OldParent string            `json:"old_parent"`
	Attrs     map[string]string `json:"attrs"`
}

func (r record) toEvent(parse func(string) (ids.ID, error)) (Event, error) {
	id, err := parse(r.ID)
	if err != nil {
		return Event{}, fmt.Errorf("changelog: bad id %q: %w", r.ID, err)
	}
	var parent ids.ID
	if r.Parent != "" {
		parent, err = parse(r.Parent)
		if err != nil {
			return Event{}, fmt.Errorf("changelog: bad parent %q: %w", r.Parent, err)
		}
	}
	var oldParent ids.ID
	if r.OldParent != "" {
		oldParent, err = parse(r.OldParent)
		if err != nil {
			return Event{}, fmt.Errorf("changelog: bad old_parent %q: %w", r.OldParent, err)
		}
	}

	a := attrs.NewAttrSet()
	for k, v := range r.Attrs {
		idx, ok := attrs.ByName(k)
		if !ok {
			continue
		}
		a.Set(idx, attrs.StrValue(v))
	}

	return Event{
		Type:      EventType(r.Type),
		ID:        id,
		Parent:    parent,
		Name:      r.Name,
		OldName:   r.OldName,
		OldParent: oldParent,
		Attrs:     a,
	}, nil
}

// DirReader watches a spool directory for newline-delimited JSON
// changelog files dropped by an external collector, and streams their
// records as Events in file-creation order.
type DirReader struct {
	dir     string
	parse   func(string) (ids.ID, error)
	watcher *fsnotify.Watcher
	events  chan Event
	errs    chan error
	done    chan struct{}
}

// NewDirReader starts watching dir; dir must already exist. parse is
// the textual-id parser for the deployment's EntryId realization (nil
// selects the fid form).
func NewDirReader(ctx context.Context, dir string, parse func(string) (ids.ID, error)) (*DirReader, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	if parse == nil {
		parse = ids.Parse
	}
	r := &DirReader{
		dir:     dir,
		parse:   parse,
		watcher: w,
		events:  make(chan Event, 256),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go r.run(ctx)
	return r, nil
}

func (r *DirReader) run(ctx context.Context) {
	defer close(r.events)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			r.drainFile(ev.Name)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			select {
			case r.errs <- err:
			default:
			}
		}
	}
}

func (r *DirReader) drainFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("changelog: malformed record")
			continue
		}
		ev, err := rec.toEvent(r.parse)
		if err != nil {
			log.Warn().Err(err).Msg("changelog: dropping record")
			continue
		}
		r.events <- ev
	}
}

// Next blocks until an event is available or the reader is closed.
func (r *DirReader) Next() (Event, error) {
	select {
	case ev, ok := <-r.events:
		if !ok {
			return Event{}, fmt.Errorf("changelog: reader closed")
		}
		return ev, nil
	case err := <-r.errs:
		return Event{}, err
	}
}

func (r *DirReader) Close() error {
	close(r.done)
	return r.watcher.Close()
}
