// pkg/configfile/writer.go

package configfile

import (
	"bytes"
	"io"
	"os"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// PendingWrite is an open temporary file that will atomically replace the
// target configuration on Finish. Opening it early makes permission and
// disk-space failures surface before any remote state is touched.
type PendingWrite struct {
	target string
	tmp    string
	f      *os.File
}

// NewPendingWrite opens <target>.tmp for writing.
func NewPendingWrite(target string) (*PendingWrite, error) {
	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, charon_err.NewIOError("could not open "+tmp+" for writing", err)
	}
	return &PendingWrite{target: target, tmp: tmp, f: f}, nil
}

// TempPath returns the temporary file's path, for rollback tracking.
func (w *PendingWrite) TempPath() string {
	return w.tmp
}

// Write appends content to the temporary file.
func (w *PendingWrite) Write(content string) error {
	if _, err := io.WriteString(w.f, content); err != nil {
		return charon_err.NewIOError("could not write "+w.tmp, err)
	}
	return nil
}

// Finish closes the temporary file and moves it into place:
//
//  1. if a configuration already exists at the target and differs from the
//     new content, the old file is copied to <target>.bak, owner-only;
//  2. the temporary file is renamed onto the target in a single filesystem
//     operation, so a crash leaves either the old or the new file, never a
//     truncated one;
//  3. the final file is hardened to owner-only, since it references
//     credential paths.
//
// The returned flag reports whether a backup was taken.
func (w *PendingWrite) Finish(rc *charon_io.RuntimeContext) (backedUp bool, err error) {
	if err := w.f.Close(); err != nil {
		return false, charon_err.NewIOError("could not finalize "+w.tmp, err)
	}

	backedUp, err = backupIfDifferent(w.target, w.tmp)
	if err != nil {
		return false, err
	}

	if err := os.Rename(w.tmp, w.target); err != nil {
		return backedUp, charon_err.NewIOError(
			"could not move configuration file '"+w.tmp+"' to final location", err)
	}
	if err := os.Chmod(w.target, 0o600); err != nil {
		return backedUp, charon_err.NewIOError("could not restrict permissions on "+w.target, err)
	}

	otelzap.Ctx(rc.Ctx).Debug("Configuration written",
		zap.String("path", w.target), zap.Bool("backed_up", backedUp))
	return backedUp, nil
}

// Discard closes and removes the temporary file, best-effort.
func (w *PendingWrite) Discard() {
	_ = w.f.Close()
	_ = os.Remove(w.tmp)
}

// backupIfDifferent copies target to <target>.bak when the new content in
// tmpPath differs byte-for-byte, preserving the previous working
// configuration across reconfiguration. Identical content takes no backup.
func backupIfDifferent(target, tmpPath string) (bool, error) {
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return false, nil
	}
	equal, err := filesEqual(target, tmpPath)
	if err != nil {
		return false, err
	}
	if equal {
		return false, nil
	}

	old, err := os.ReadFile(target)
	if err != nil {
		return false, charon_err.NewIOError("could not read existing configuration "+target, err)
	}
	bak := target + ".bak"
	if err := os.WriteFile(bak, old, 0o600); err != nil {
		return false, charon_err.NewIOError("could not back up configuration to "+bak, err)
	}
	if err := os.Chmod(bak, 0o600); err != nil {
		return false, charon_err.NewIOError("could not restrict permissions on "+bak, err)
	}
	return true, nil
}

// filesEqual compares size first, then full content.
func filesEqual(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, cerr.Wrapf(err, "stat %s", a)
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, cerr.Wrapf(err, "stat %s", b)
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}
	da, err := os.ReadFile(a)
	if err != nil {
		return false, cerr.Wrapf(err, "read %s", a)
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, cerr.Wrapf(err, "read %s", b)
	}
	return bytes.Equal(da, db), nil
}
