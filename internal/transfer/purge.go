package transfer

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PurgeGlob deletes every file in dir matching the glob pattern and
// returns how many were removed. Run before a download so a stale
// archive from a previous failed run can never be picked up as the
// latest one. A missing directory purges nothing.
func PurgeGlob(dir, pattern string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, eris.Wrapf(err, "purge: bad pattern %q", pattern)
	}

	deleted := 0
	for _, p := range matches {
		if err := os.Remove(p); err != nil {
			return deleted, eris.Wrapf(err, "purge: delete %s", p)
		}
		deleted++
		zap.L().Info("purge: deleted file", zap.String("path", p))
	}

	if deleted == 0 {
		zap.L().Debug("purge: nothing matched",
			zap.String("dir", dir),
			zap.String("pattern", pattern),
		)
	}
	return deleted, nil
}

// RemoveIfExists deletes path if present. Used for the exact download
// target after the pattern purge, in case the naming pattern changes.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "purge: delete %s", path)
	}
	return nil
}
