package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/david/eis-harvester/internal/eis"
	"github.com/david/eis-harvester/internal/filter"
	"github.com/david/eis-harvester/internal/harvest"
	"github.com/david/eis-harvester/internal/rules"
)

var (
	flagToken       string
	flagDays        int
	flagRegions     string
	flagInclude223  bool
	flagSleep       float64
	flagLimit       int
	flagDownload    bool
	flagByPurchase  bool
	flagMaxFileMB   int
	flagOut         string
	flagRules       string
	flagEndpoint    string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvest public procurement notices matching subject-matter keywords",
		Long: `Scans the public procurement integration service by region, day and
document type over a trailing time window, keeps notices matching the
configured keyword patterns, and mirrors them to a local file tree with a
per-notice manifest.`,
		SilenceUsage: false,
		RunE:         runHarvest,
	}

	cmd.Flags().StringVar(&flagToken, "token", "", "individualPerson token for the integration service (required)")
	cmd.Flags().IntVar(&flagDays, "days", 7, "How many trailing days to scan")
	cmd.Flags().StringVar(&flagRegions, "regions", "", "Comma-separated region codes (default: full configured set)")
	cmd.Flags().BoolVar(&flagInclude223, "include223", false, "Also scan the RI223 (223-FZ) subsystem")
	cmd.Flags().Float64Var(&flagSleep, "sleep", 0.4, "Pause between day iterations, in seconds")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "Stop after this many matched purchases (0 = unlimited)")
	cmd.Flags().BoolVar(&flagDownload, "download-attachments", false, "Download discovered attachments")
	cmd.Flags().BoolVar(&flagByPurchase, "fetch-by-purchase", false, "Also fetch the full document package per purchase number")
	cmd.Flags().IntVar(&flagMaxFileMB, "max-file-mb", 200, "Per-file size cap in megabytes (0 = unlimited)")
	cmd.Flags().StringVar(&flagOut, "out", "out", "Output directory root")
	cmd.Flags().StringVar(&flagRules, "rules", "", "Path to a rules.yaml overriding the embedded defaults")
	cmd.Flags().StringVar(&flagEndpoint, "endpoint", eis.DefaultEndpoint, "Integration service URL")

	cmd.MarkFlagRequired("token")

	return cmd
}

func runHarvest(cmd *cobra.Command, args []string) error {
	regions, err := parseRegions(flagRegions)
	if err != nil {
		return err
	}

	r, err := rules.Load(flagRules)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	patterns, err := r.CompileKeywords()
	if err != nil {
		return err
	}

	var maxBytes int64
	if flagMaxFileMB > 0 {
		maxBytes = int64(flagMaxFileMB) * 1024 * 1024
	}

	opts := harvest.Options{
		Token:               flagToken,
		Days:                flagDays,
		Regions:             regions,
		Include223:          flagInclude223,
		Sleep:               time.Duration(flagSleep * float64(time.Second)),
		Limit:               flagLimit,
		DownloadAttachments: flagDownload,
		FetchByPurchase:     flagByPurchase,
		MaxFileBytes:        maxBytes,
		OutDir:              flagOut,
	}

	fs := afero.NewOsFs()
	client := eis.NewClient(flagEndpoint, flagToken, r.ContentTypeExts, fs)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reachability sanity check; failure here is fatal to the whole run.
	if err := client.CheckService(ctx); err != nil {
		return err
	}

	if err := fs.MkdirAll(flagOut, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	scanner := harvest.NewScanner(client, r, filter.New(patterns), fs, opts)
	summary, runErr := scanner.Run(ctx)
	if runErr != nil {
		log.Printf("run interrupted: %v", runErr)
	}

	if summary.Matched == 0 {
		fmt.Println("\nDone: no matches found.")
	} else {
		fmt.Printf("\nDone: processed %d purchases. See: %s\n", summary.Matched, flagOut)
	}
	printSummary(summary)

	return nil
}

func printSummary(s harvest.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Matched", "Slices", "Slice Errors", "Files Saved", "File Errors", "Halt"})
	t.AppendRow(table.Row{s.Matched, s.Slices, s.SliceErrors, s.FilesSaved, s.FileErrors, string(s.Halt)})
	t.Render()
}

func parseRegions(list string) ([]int, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	var regions []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid region %q", part)
		}
		regions = append(regions, n)
	}
	return regions, nil
}

func main() {
	root := newRootCmd()

	// Bare invocation prints usage and exits without side effects.
	if len(os.Args) < 2 {
		root.Help()
		return
	}

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
