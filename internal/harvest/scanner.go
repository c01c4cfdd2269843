// Package harvest drives the fetch-filter-extract-persist pipeline over the
// (region × day × document-type) iteration space.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/david/eis-harvester/internal/eis"
	"github.com/david/eis-harvester/internal/extract"
	"github.com/david/eis-harvester/internal/files"
	"github.com/david/eis-harvester/internal/filter"
	"github.com/david/eis-harvester/internal/manifest"
	"github.com/david/eis-harvester/internal/rules"
)

// attachmentPause spaces out successive attachment downloads within one
// notice so the remote server is not hit in a burst.
const attachmentPause = 100 * time.Millisecond

// HaltReason records why a run stopped.
type HaltReason string

const (
	// HaltExhausted: the loop naturally reached the last slice.
	HaltExhausted HaltReason = "exhausted"
	// HaltAuthFailure: the service rejected the token; no later slice in
	// the same run can succeed, so everything is abandoned immediately.
	HaltAuthFailure HaltReason = "authFailure"
	// HaltLimitReached: the configured result-count limit was hit.
	HaltLimitReached HaltReason = "limitReached"
)

// sliceOutcome is the tagged result of one slice: keep scanning, or stop the
// whole run for the given reason. Halting is a return value, never a
// non-local exit, so the control flow stays testable without network I/O.
type sliceOutcome struct {
	stop   bool
	reason HaltReason
}

var continueRun = sliceOutcome{}

func stopRun(reason HaltReason) sliceOutcome {
	return sliceOutcome{stop: true, reason: reason}
}

// stopError carries a stop decision out of an archive walk callback.
type stopError struct {
	reason HaltReason
}

func (e stopError) Error() string {
	return "stop run: " + string(e.reason)
}

// ProtocolClient is the network surface the scanner depends on.
// *eis.Client implements it.
type ProtocolClient interface {
	CallSOAP(ctx context.Context, envelope string) ([]byte, error)
	FetchArchive(ctx context.Context, url string) ([]byte, error)
	FetchAttachment(ctx context.Context, url, dest string, maxBytes int64) (eis.SavedFile, error)
}

// Summary is the end-of-run report.
type Summary struct {
	Matched     int
	Slices      int
	SliceErrors int
	FilesSaved  int
	FileErrors  int
	Halt        HaltReason
}

// Scanner is the top-level orchestrator. It owns the dedup ledger and the
// running counters; execution is single-threaded and sequential by design —
// the upstream service is rate-sensitive and token-scoped, so serialized
// requests with optional pacing are the correctness-preserving choice.
type Scanner struct {
	client   ProtocolClient
	rules    *rules.Rules
	filter   *filter.Filter
	manifest *manifest.Writer
	fs       afero.Fs
	opts     Options
	ledger   *Ledger
	summary  Summary
}

func NewScanner(client ProtocolClient, r *rules.Rules, f *filter.Filter, fs afero.Fs, opts Options) *Scanner {
	return &Scanner{
		client:   client,
		rules:    r,
		filter:   f,
		manifest: manifest.NewWriter(fs),
		fs:       fs,
		opts:     opts,
		ledger:   NewLedger(),
	}
}

// Run walks the whole scan window. Cancellation is cooperative: the context
// is checked between iteration steps, not in the middle of a network read.
func (s *Scanner) Run(ctx context.Context) (Summary, error) {
	window := NewWindow(s.opts, s.rules, time.Now())
	s.summary.Halt = HaltExhausted

scan:
	for _, region := range window.Regions {
		log.Printf("=== region %02d ===", region)
		for day := window.Start; !day.After(window.End); day = day.AddDate(0, 0, 1) {
			if err := ctx.Err(); err != nil {
				return s.summary, err
			}

			date := day.Format("2006-01-02")
			for _, plan := range window.Subsystems {
				out := s.scanSlice(ctx, region, date, plan)
				if out.stop {
					s.summary.Halt = out.reason
					break scan
				}
			}

			if s.opts.Sleep > 0 {
				select {
				case <-ctx.Done():
					return s.summary, ctx.Err()
				case <-time.After(s.opts.Sleep):
				}
			}
		}
	}

	return s.summary, nil
}

// scanSlice handles every document type of one (region, day, subsystem)
// combination. Transport failures, malformed responses and malformed
// archives are slice-transient: logged and skipped. Only an authentication
// fault or the result limit stop the run.
func (s *Scanner) scanSlice(ctx context.Context, region int, date string, plan SubsystemPlan) sliceOutcome {
	for _, docType := range plan.DocTypes {
		if err := ctx.Err(); err != nil {
			return continueRun
		}
		s.summary.Slices++

		envelope := eis.BuildDocsByOrgRegion(s.opts.Token, region, plan.Tag, docType, date)
		body, err := s.client.CallSOAP(ctx, envelope)
		if err != nil {
			log.Printf("[%02d] %s %s:%s request: %v", region, date, plan.Tag, docType, err)
			s.summary.SliceErrors++
			continue
		}

		result, err := eis.Interpret(body)
		if err != nil {
			log.Printf("[%02d] %s %s:%s response: %v", region, date, plan.Tag, docType, err)
			s.summary.SliceErrors++
			continue
		}
		if result.Fault != "" {
			if result.IsAuthFailure() {
				log.Printf("[AUTH] %s", result.Fault)
				return stopRun(HaltAuthFailure)
			}
			log.Printf("[%02d] %s %s:%s fault: %s", region, date, plan.Tag, docType, result.Fault)
			s.summary.SliceErrors++
			continue
		}
		if result.ArchiveURL == "" {
			// No data for this slice.
			continue
		}

		archive, err := s.client.FetchArchive(ctx, result.ArchiveURL)
		if err != nil {
			log.Printf("[%02d] %s download: %v", region, date, err)
			s.summary.SliceErrors++
			continue
		}

		walkErr := eis.WalkArchiveXML(archive, func(name string, content []byte) error {
			return s.processEntry(ctx, region, date, docType, name, content)
		})
		if walkErr != nil {
			var stop stopError
			if errors.As(walkErr, &stop) {
				return stopRun(stop.reason)
			}
			log.Printf("[%02d] %s archive: %v", region, date, walkErr)
			s.summary.SliceErrors++
		}
	}

	return continueRun
}

// processEntry runs one XML archive member through filter, extraction,
// dedup and persistence. Structurally incomplete entries are skipped, not
// retried: they can never become valid later.
func (s *Scanner) processEntry(ctx context.Context, region int, date, docType, entryName string, content []byte) error {
	if !s.filter.Match(string(content)) {
		return nil
	}

	notice, err := extract.Extract(content, s.rules)
	if err != nil {
		log.Printf("[%02d] %s entry %s: %v", region, date, entryName, err)
		return nil
	}
	if notice.PurchaseNumber == "" {
		return nil
	}
	if !s.ledger.MarkPurchase(notice.PurchaseNumber) {
		return nil
	}

	s.summary.Matched++
	log.Printf("  • [%02d] %s %s | %s | %s | %s",
		region, date, notice.PurchaseNumber,
		orDash(notice.PlacingName), orDash(notice.MaxPrice), orDash(notice.Name))

	dir := filepath.Join(s.opts.OutDir, notice.PurchaseNumber)
	if err := s.fs.MkdirAll(filepath.Join(dir, "files"), 0o755); err != nil {
		log.Printf("[%02d] %s mkdir %s: %v", region, date, dir, err)
		return nil
	}

	noticeName := fmt.Sprintf("notice_%s_%s_%s", docType, date, files.Sanitize(filepath.Base(entryName)))
	if err := afero.WriteFile(s.fs, filepath.Join(dir, noticeName), content, 0o644); err != nil {
		log.Printf("[%02d] %s save notice: %v", region, date, err)
	}

	var rows []manifest.Row
	if s.opts.DownloadAttachments {
		rows = s.downloadLinks(ctx, notice.Links, dir, "notice", "")
	}

	if s.opts.FetchByPurchase {
		pkgRows := s.fetchPackage(ctx, notice.PurchaseNumber, date, dir)
		if s.opts.DownloadAttachments {
			rows = append(rows, pkgRows...)
		}
	}

	if err := s.manifest.Append(dir, notice, rows); err != nil {
		log.Printf("[%02d] %s manifest: %v", region, date, err)
	}

	if s.opts.Limit > 0 && s.summary.Matched >= s.opts.Limit {
		return stopError{reason: HaltLimitReached}
	}
	return nil
}

// downloadLinks fetches each attachment, producing one manifest row per
// attempt. A failed download yields an error row so the manifest stays a
// complete audit trail, and never aborts the notice.
func (s *Scanner) downloadLinks(ctx context.Context, links []extract.Link, dir, source, ordinalPrefix string) []manifest.Row {
	rows := make([]manifest.Row, 0, len(links))
	for i, link := range links {
		ordinal := fmt.Sprintf("%s%03d", ordinalPrefix, i+1)

		base := link.Name
		if base == "" {
			base = files.FromURL(link.URL)
		}
		base = files.Sanitize(base)
		if base == "" {
			base = "file"
		}

		dest := filepath.Join(dir, "files", ordinal+"__"+base)
		saved, err := s.client.FetchAttachment(ctx, link.URL, dest, s.opts.MaxFileBytes)
		if err != nil {
			s.summary.FileErrors++
			rows = append(rows, manifest.Row{
				Ordinal: ordinal,
				Source:  source,
				URL:     link.URL,
				SavedAs: "ERROR: " + err.Error(),
			})
			continue
		}

		s.summary.FilesSaved++
		rows = append(rows, manifest.Row{
			Ordinal:     ordinal,
			Source:      source,
			URL:         link.URL,
			SavedAs:     filepath.Base(saved.Path),
			ContentType: saved.ContentType,
			Bytes:       fmt.Sprintf("%d", saved.Bytes),
		})

		select {
		case <-ctx.Done():
			return rows
		case <-time.After(attachmentPause):
		}
	}
	return rows
}

// fetchPackage re-requests the full document package by purchase number,
// saves its XML members next to the notice and optionally downloads their
// attachments. Entirely best-effort: any failure abandons the package
// without affecting the notice.
func (s *Scanner) fetchPackage(ctx context.Context, purchaseNumber, date, dir string) []manifest.Row {
	var rows []manifest.Row

	envelope := eis.BuildDocsByRegistryNumber(s.opts.Token, purchaseNumber)
	body, err := s.client.CallSOAP(ctx, envelope)
	if err != nil {
		return rows
	}
	result, err := eis.Interpret(body)
	if err != nil || result.Fault != "" || result.ArchiveURL == "" {
		return rows
	}
	archive, err := s.client.FetchArchive(ctx, result.ArchiveURL)
	if err != nil {
		return rows
	}

	k := 0
	_ = eis.WalkArchiveXML(archive, func(name string, content []byte) error {
		k++
		pkgName := fmt.Sprintf("package_%s_%03d.xml", date, k)
		if err := afero.WriteFile(s.fs, filepath.Join(dir, pkgName), content, 0o644); err != nil {
			log.Printf("save %s: %v", pkgName, err)
		}

		if !s.opts.DownloadAttachments {
			return nil
		}
		pkg, err := extract.Extract(content, s.rules)
		if err != nil {
			return nil
		}
		prefix := fmt.Sprintf("p%03d_", k)
		rows = append(rows, s.downloadLinks(ctx, pkg.Links, dir, "package", prefix)...)
		return nil
	})

	return rows
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
