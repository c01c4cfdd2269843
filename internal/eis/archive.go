package eis

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// WalkArchiveXML opens data as a zip archive and calls fn for each entry
// whose name ends in ".xml" (case-insensitive), in archive order. A callback
// error aborts the walk and is returned as-is; a malformed archive or entry
// aborts with a wrapped error the caller treats as a slice failure.
func WalkArchiveXML(data []byte, fn func(name string, content []byte) error) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	for _, entry := range zr.File {
		if !strings.HasSuffix(strings.ToLower(entry.Name), ".xml") {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open archive entry %s: %w", entry.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("read archive entry %s: %w", entry.Name, err)
		}

		if err := fn(entry.Name, content); err != nil {
			return err
		}
	}

	return nil
}
