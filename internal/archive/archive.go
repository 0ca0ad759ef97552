// Package archive locates the newest downloaded feed archive and
// decodes the tabular file inside it.
package archive

import (
	"archive/zip"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/feedsync-cli/internal/feed"
)

// Sentinel errors for the extract stage.
var (
	ErrNoMatchingArchive    = eris.New("archive: no archive matches pattern")
	ErrArchiveNotFound      = eris.New("archive: archive does not exist")
	ErrNoTabularFile        = eris.New("archive: no csv file inside archive")
	ErrMalformedTabularData = eris.New("archive: csv inside archive is malformed")
)

// LatestArchive returns the most recently modified file in dir
// matching the glob pattern. Ties keep glob (lexical) order, so the
// choice is deterministic.
func LatestArchive(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", eris.Wrapf(err, "archive: bad pattern %q", pattern)
	}
	if len(matches) == 0 {
		return "", eris.Wrapf(ErrNoMatchingArchive, "pattern %q in %s", pattern, dir)
	}

	type candidate struct {
		path string
		mod  int64
	}
	cands := make([]candidate, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return "", eris.Wrapf(err, "archive: stat %s", m)
		}
		cands = append(cands, candidate{path: m, mod: info.ModTime().UnixNano()})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].mod > cands[j].mod })

	latest := cands[0].path
	zap.L().Info("archive: latest selected", zap.String("path", latest))
	return latest, nil
}

// ExtractOptions configures table extraction.
type ExtractOptions struct {
	// ScratchDir, when set, also receives a copy of the selected CSV
	// for post-run inspection.
	ScratchDir string
	// Encoding names the CSV charset (e.g. "windows-1252"). Empty
	// means UTF-8.
	Encoding string
}

// ExtractTable opens the zip archive and decodes the first CSV entry,
// in archive-listing order, into a raw table. The first-match rule is
// a compatibility contract with the vendor's packaging and must not
// change. A decode failure aborts with no partial table.
func ExtractTable(archivePath string, opts ExtractOptions) (*feed.RawTable, error) {
	if _, err := os.Stat(archivePath); err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrArchiveNotFound, "%s", archivePath)
		}
		return nil, eris.Wrapf(err, "archive: stat %s", archivePath)
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedTabularData, "open %s: %v", archivePath, err)
	}
	defer r.Close() //nolint:errcheck

	entry := firstCSV(r.File)
	if entry == nil {
		return nil, eris.Wrapf(ErrNoTabularFile, "in %s", archivePath)
	}
	zap.L().Info("archive: csv entry selected",
		zap.String("archive", archivePath),
		zap.String("entry", entry.Name),
	)

	if opts.ScratchDir != "" {
		if _, err := extractEntry(entry, opts.ScratchDir); err != nil {
			return nil, err
		}
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedTabularData, "open entry %s: %v", entry.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	table, err := decodeCSV(rc, opts.Encoding)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedTabularData, "decode %s: %v", entry.Name, err)
	}

	zap.L().Info("archive: table decoded",
		zap.String("entry", entry.Name),
		zap.Int("rows", len(table.Rows)),
		zap.Int("columns", len(table.Header)),
	)
	return table, nil
}

// firstCSV returns the first non-directory .csv entry in listing order.
func firstCSV(files []*zip.File) *zip.File {
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(f.Name), ".csv") {
			return f
		}
	}
	return nil
}

// decodeCSV reads the whole entry into a raw table. The first row is
// the header; rows may have ragged widths, which the transform treats
// as nulls.
func decodeCSV(r io.Reader, encoding string) (*feed.RawTable, error) {
	if encoding != "" {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "unknown encoding %q", encoding)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read row")
		}
		rows = append(rows, record)
	}

	return feed.NewRawTable(header, rows), nil
}

// extractEntry writes a zip entry under destDir with a zip-slip guard.
func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, filepath.Base(f.Name))
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("archive: illegal entry path %q", f.Name)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "archive: create scratch directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(ErrMalformedTabularData, "open entry %s: %v", f.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "archive: create scratch file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrapf(err, "archive: extract %s", f.Name)
	}

	return destPath, nil
}
