// Package rundirwatch is an operator diagnostic: it reports external
// mutation of the daemon's runtime directory (the socket, lock, and
// state files getting created, removed, or rewritten by something
// other than satd itself). It backs the hidden `satd __watch` command
// and is never on the path of any scheduling operation.
//
// Grounded on the teacher's internal/watcher.XyWatcher, which wraps
// fsnotify the same way: one watched directory, one goroutine
// translating fsnotify's event bitmask into a small closed event enum,
// delivered to a caller-supplied callback.
package rundirwatch

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// EventKind is the reason a path changed.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventRemoved  EventKind = "removed"
	EventRenamed  EventKind = "renamed"
)

// Event describes one change observed in the runtime directory.
type Event struct {
	Kind EventKind
	Path string
}

// Watcher reports changes under a single runtime directory.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// Open starts watching dir. Callers typically point this at
// bootstrap.RuntimePaths().Dir.
func Open(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{fsw: fsw}, nil
}

// Run delivers events to fn until the watcher is closed, blocking the
// calling goroutine until then.
func (w *Watcher) Run(fn func(Event)) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			kind, ok := classify(ev)
			if !ok {
				continue
			}
			fn(Event{Kind: kind, Path: ev.Name})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("rundirwatch: %v", err)
		}
	}
}

func classify(ev fsnotify.Event) (EventKind, bool) {
	switch {
	case ev.Has(fsnotify.Create):
		return EventCreated, true
	case ev.Has(fsnotify.Write):
		return EventModified, true
	case ev.Has(fsnotify.Remove):
		return EventRemoved, true
	case ev.Has(fsnotify.Rename):
		return EventRenamed, true
	default:
		return "", false
	}
}

// Close stops the watcher and releases its inotify (or platform
// equivalent) descriptor.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
