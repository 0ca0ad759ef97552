// Package staging publishes a validated canonical table to the local
// staging directory, gated by the date-range window.
package staging

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedsync-cli/internal/feed"
	"github.com/sells-group/feedsync-cli/internal/transfer"
)

// Sentinel errors for the stage step. The date gates are policy
// failures: expected, and recoverable once newer data arrives.
var (
	ErrOutputDirMissing     = eris.New("staging: output directory does not exist")
	ErrMissingDateColumn    = eris.New("staging: table has no Date column")
	ErrAllDatesUnparseable  = eris.New("staging: every Date value is null")
	ErrDateRangeOutOfWindow = eris.New("staging: date range outside lookback window")
	ErrStaleMonth           = eris.New("staging: latest month is neither current nor previous month")
)

// Options configures the staging writer.
type Options struct {
	Dir          string
	Prefix       string // staged filename prefix, e.g. "Viljoenbev"
	LookbackDays int    // default 3
	DeletePolicy string // "all" or "prefix"
	CreateDir    bool
	Now          func() time.Time // injectable clock; defaults to time.Now
}

// Writer stages canonical tables.
type Writer struct {
	opts Options
}

// NewWriter creates a Writer with the given options.
func NewWriter(opts Options) *Writer {
	if opts.LookbackDays == 0 {
		opts.LookbackDays = 3
	}
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = "all"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Writer{opts: opts}
}

// Stage writes the table to `{prefix}_{min}_to_{max}.csv` in the
// output directory. Publication is full-replace: prior staged CSVs are
// purged first, except the target itself — if the target already
// exists the write is skipped and written=false is returned with its
// bytes untouched. That skip is the pipeline's replay-safety
// mechanism, not an error.
func (w *Writer) Stage(t *feed.Table) (string, bool, error) {
	dir, err := w.resolveDir()
	if err != nil {
		return "", false, err
	}

	if !t.HasDateColumn() {
		return "", false, eris.Wrap(ErrMissingDateColumn, "stage")
	}
	minDate, maxDate, ok := t.DateRange()
	if !ok {
		return "", false, eris.Wrap(ErrAllDatesUnparseable, "stage")
	}

	if err := w.ValidateDates(minDate, maxDate); err != nil {
		return "", false, err
	}

	name := fmt.Sprintf("%s_%s_to_%s.csv",
		w.opts.Prefix,
		minDate.Format(feed.DateLayout),
		maxDate.Format(feed.DateLayout),
	)
	target := filepath.Join(dir, name)

	if err := w.purge(dir, target); err != nil {
		return target, false, err
	}

	if _, err := os.Stat(target); err == nil {
		zap.L().Info("stage: file already exists, skipping write",
			zap.String("path", target),
		)
		return target, false, nil
	}

	if err := writeCSV(t, target); err != nil {
		return target, false, err
	}

	zap.L().Info("stage: table written",
		zap.String("path", target),
		zap.Int("rows", len(t.Records)),
	)
	return target, true, nil
}

// ValidateDates applies the publication gate: the whole range must sit
// inside the trailing lookback window, and the latest date's month
// must be the current or immediately preceding month (December wraps
// to January).
func (w *Writer) ValidateDates(minDate, maxDate time.Time) error {
	today := dateOnly(w.opts.Now())
	windowStart := today.AddDate(0, 0, -w.opts.LookbackDays)

	minD := dateOnly(minDate)
	maxD := dateOnly(maxDate)

	if minD.Before(windowStart) || minD.After(today) ||
		maxD.Before(windowStart) || maxD.After(today) {
		return eris.Wrapf(ErrDateRangeOutOfWindow,
			"range %s to %s not within %s..%s",
			minD.Format(feed.DateLayout), maxD.Format(feed.DateLayout),
			windowStart.Format(feed.DateLayout), today.Format(feed.DateLayout),
		)
	}

	curMonth := today.Month()
	prevMonth := curMonth - 1
	if curMonth == time.January {
		prevMonth = time.December
	}
	if m := maxD.Month(); m != curMonth && m != prevMonth {
		return eris.Wrapf(ErrStaleMonth,
			"latest month %d, current %d, previous %d", m, curMonth, prevMonth)
	}

	return nil
}

func (w *Writer) resolveDir() (string, error) {
	dir, err := filepath.Abs(w.opts.Dir)
	if err != nil {
		return "", eris.Wrapf(err, "stage: resolve %s", w.opts.Dir)
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return dir, nil
	case err == nil:
		return "", eris.Wrapf(ErrOutputDirMissing, "%s is not a directory", dir)
	case !os.IsNotExist(err):
		return "", eris.Wrapf(err, "stage: stat %s", dir)
	}

	if !w.opts.CreateDir {
		return "", eris.Wrapf(ErrOutputDirMissing, "%s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "stage: create %s", dir)
	}
	zap.L().Info("stage: created output directory", zap.String("dir", dir))
	return dir, nil
}

// purge removes prior staged CSVs per the delete policy, sparing the
// current target so the idempotent skip still works on replays.
func (w *Writer) purge(dir, target string) error {
	pattern := "*.csv"
	if w.opts.DeletePolicy == "prefix" {
		pattern = w.opts.Prefix + "*.csv"
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return eris.Wrapf(err, "stage: bad purge pattern %q", pattern)
	}
	for _, m := range matches {
		if m == target {
			continue
		}
		if err := transfer.RemoveIfExists(m); err != nil {
			return err
		}
		zap.L().Info("stage: purged prior file", zap.String("path", m))
	}
	return nil
}

// writeCSV writes the table atomically: temp file in the same
// directory, then rename. A crash mid-write never leaves a truncated
// file under the final name.
func writeCSV(t *feed.Table, target string) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".staging-*.csv")
	if err != nil {
		return eris.Wrap(err, "stage: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	cw := csv.NewWriter(tmp)
	if err := cw.Write(t.Columns); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "stage: write header")
	}
	row := make([]string, len(t.Columns))
	for i := range t.Records {
		for j, col := range t.Columns {
			row[j] = t.Records[i].FormatField(col)
		}
		if err := cw.Write(row); err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrapf(err, "stage: write row %d", i)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "stage: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "stage: close temp file")
	}

	if err := os.Rename(tmpName, target); err != nil {
		return eris.Wrapf(err, "stage: rename to %s", target)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
