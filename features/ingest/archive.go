package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

type archiveEntry struct {
	Name    string
	Content []byte
}

// expandArchive lists the supported files inside a zip container. Directories
// and unsupported entries are skipped; an unreadable archive rejects the whole
// submission since expansion happens before acceptance.
func expandArchive(content []byte) ([]archiveEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var entries []archiveEntry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Base(f.Name)
		if strings.HasPrefix(name, ".") || !SupportedExtension(name) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive entry %s: %w", f.Name, err)
		}

		entries = append(entries, archiveEntry{Name: name, Content: data})
	}
	return entries, nil
}

func isArchive(filename string) bool {
	return strings.EqualFold(path.Ext(filename), ".zip")
}
