package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Workspace is a per-request scratch directory under DATA_DIR/requests.
// File names carry a "<uid>_<rid>" prefix so concurrent requests never collide
// even when they share a directory.
type Workspace struct {
	dir    string
	prefix string
}

// OpenWorkspace creates root/requests/<requestID>.
func OpenWorkspace(root, requestID string, userID int64) (*Workspace, error) {
	if requestID == "" || filepath.Base(requestID) != requestID || requestID == "." || requestID == ".." {
		return nil, fmt.Errorf("workspace: bad request id %q", requestID)
	}
	dir := filepath.Join(root, "requests", requestID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Workspace{dir: dir, prefix: strconv.FormatInt(userID, 10) + "_" + requestID}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Path returns a file path inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, w.prefix+"_"+name)
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.dir)
}

// SweepWorkspaces removes request directories last modified before
// now-olderThan and returns how many were removed. A missing root is not an
// error.
func SweepWorkspaces(root string, olderThan time.Duration, now time.Time) (int, error) {
	base := filepath.Join(root, "requests")
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-olderThan)
	removed := 0
	var firstErr error
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(base, ent.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
