// Package guard tracks filesystem resources created during a provisioning
// attempt and removes them all if the attempt is abandoned before Commit.
package guard

import (
	"os"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

type kind int

const (
	kindFile kind = iota
	kindDirectory
	kindDirectoryRecursive
)

type entry struct {
	path string
	kind kind
}

// Guard is a ledger of created paths. Entries added with the Track methods
// are deleted in reverse insertion order by Unwind, so files go before the
// directories that contain them. Commit discards the ledger without deleting
// anything. The zero ordering rule callers must respect: only track paths
// this run actually created, never pre-existing state.
type Guard struct {
	log       *zap.Logger
	entries   []entry
	committed bool
}

func New(log *zap.Logger) *Guard {
	return &Guard{log: log}
}

// TrackFile registers a file for removal on unwind.
func (g *Guard) TrackFile(path string) {
	g.entries = append(g.entries, entry{path: path, kind: kindFile})
}

// TrackDirectory registers a directory for removal on unwind. Recursive
// directories are removed with their entire contents.
func (g *Guard) TrackDirectory(path string, recursive bool) {
	k := kindDirectory
	if recursive {
		k = kindDirectoryRecursive
	}
	g.entries = append(g.entries, entry{path: path, kind: k})
}

// Untrack removes a path from the ledger, e.g. after it has been renamed to
// its final location and is no longer this attempt's to delete.
func (g *Guard) Untrack(path string) {
	for i, e := range g.entries {
		if e.path == path {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			return
		}
	}
}

// Commit clears the ledger. After Commit, Unwind deletes nothing.
func (g *Guard) Commit() {
	g.entries = nil
	g.committed = true
}

// Unwind deletes every still-tracked path in reverse insertion order.
// Deletion is best-effort: failures are aggregated and logged, never
// returned, so a failed rollback cannot mask the error that triggered it.
func (g *Guard) Unwind() {
	if g.committed || len(g.entries) == 0 {
		return
	}
	var errs *multierror.Error
	for i := len(g.entries) - 1; i >= 0; i-- {
		e := g.entries[i]
		var err error
		switch e.kind {
		case kindFile, kindDirectory:
			err = os.Remove(e.path)
		case kindDirectoryRecursive:
			err = os.RemoveAll(e.path)
		}
		if err != nil && !os.IsNotExist(err) {
			errs = multierror.Append(errs, err)
		}
	}
	g.entries = nil
	if err := errs.ErrorOrNil(); err != nil {
		g.log.Warn("Could not fully unwind provisioning state", zap.Error(err))
	}
}
