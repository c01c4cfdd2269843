// Package manifest maintains the per-notice TSV audit file. The manifest is
// append-only: every processed notice contributes one metadata row, and every
// attachment attempt — successful or not — contributes one file row.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/david/eis-harvester/internal/extract"
)

// FileName is the manifest filename inside each notice directory.
const FileName = "manifest.tsv"

var metaColumns = []string{
	"purchaseNumber", "docKind", "placingCode", "placingName", "customerName",
	"customerINN", "customerKPP", "maxPrice", "currency", "publishDate",
	"appStart", "appEnd", "platform", "okpd2", "name",
}

var fileColumns = []string{"ordinal", "source", "url", "saved_as", "content_type", "bytes"}

// Row is one attachment outcome. SavedAs carries the final on-disk filename,
// or an "ERROR: ..." sentinel when the download failed.
type Row struct {
	Ordinal     string
	Source      string
	URL         string
	SavedAs     string
	ContentType string
	Bytes       string
}

// Writer appends notice records to manifest files.
type Writer struct {
	fs afero.Fs
}

func NewWriter(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// Append writes one metadata row and the given file rows to dir's manifest.
// Section headers are written exactly once, on the first write to the file;
// later appends add bare rows. The writer does not deduplicate notices —
// that is the run ledger's job.
func (w *Writer) Append(dir string, n *extract.Notice, rows []Row) error {
	path := filepath.Join(dir, FileName)

	existed, err := afero.Exists(w.fs, path)
	if err != nil {
		return fmt.Errorf("stat manifest: %w", err)
	}

	f, err := w.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	out := bufio.NewWriter(f)
	if !existed {
		fmt.Fprintln(out, "# meta")
		fmt.Fprintln(out, strings.Join(metaColumns, "\t"))
	}
	fmt.Fprintln(out, joinRow(metaValues(n)))

	if len(rows) > 0 {
		if !existed {
			fmt.Fprintln(out, "# files")
			fmt.Fprintln(out, strings.Join(fileColumns, "\t"))
		}
		for _, row := range rows {
			fmt.Fprintln(out, joinRow([]string{
				row.Ordinal, row.Source, row.URL, row.SavedAs, row.ContentType, row.Bytes,
			}))
		}
	}

	if err := out.Flush(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func metaValues(n *extract.Notice) []string {
	return []string{
		n.PurchaseNumber, n.DocKind, n.PlacingCode, n.PlacingName, n.CustomerName,
		n.CustomerINN, n.CustomerKPP, n.MaxPrice, n.Currency, n.PublishDate,
		n.AppStart, n.AppEnd, n.Platform, n.OKPD2, n.Name,
	}
}

// joinRow strips embedded tabs and newlines so a single malformed value
// cannot break the TSV structure, then joins with tabs.
func joinRow(fields []string) string {
	cleaned := make([]string, len(fields))
	for i, v := range fields {
		v = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(v)
		cleaned[i] = v
	}
	return strings.Join(cleaned, "\t")
}
