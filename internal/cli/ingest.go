package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docrag/internal/adapter/fs"
	"docrag/internal/port"
	"docrag/internal/usecase"
)

var ingestForce bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest documents into the index",
	Long: `Ingest PDF and text documents into the vector index. Directories are
walked with the storage include/exclude globs. Files already recorded in
the ledger or present in the processed folder are skipped.

Examples:
  docrag ingest ./docs            # Ingest every new document under ./docs
  docrag ingest manual.pdf faq.md # Ingest specific files`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "ingest even if the index was built with different embedding or chunking settings")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := context.Background()

	var walker port.FileWalker = fs.NewWalker(cfg.Storage.Includes, cfg.Storage.Excludes)
	files, err := walker.Expand(args)
	if err != nil {
		return fmt.Errorf("failed to collect files: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No matching files found.")
		return nil
	}

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if drift, reason := a.configDrift(); drift {
		if !ingestForce {
			return fmt.Errorf("%s; re-run with --force to ingest anyway or restore the previous settings", reason)
		}
		fmt.Printf("Warning: %s (continuing with --force)\n", reason)
		if err := a.acceptDrift(); err != nil {
			return err
		}
	}

	fmt.Printf("Ingesting %d file(s)...\n", len(files))

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	var barMu sync.Mutex
	startTime := time.Now()
	done := 0
	onFile := func(fr usecase.FileResult) {
		barMu.Lock()
		defer barMu.Unlock()

		done++
		_ = bar.Set(done)
		elapsed := time.Since(startTime)
		rate := float64(done) / elapsed.Seconds()
		if remaining := len(files) - done; rate > 0 && remaining > 0 {
			eta := time.Duration(float64(remaining)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
		}
	}

	result := a.pipeline.IngestPaths(ctx, files, onFile)

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Files ingested: %d\n", result.Ingested)
	fmt.Printf("  Files skipped:  %d (already processed)\n", result.Skipped)
	fmt.Printf("  Files failed:   %d\n", result.Failed)

	if result.Failed > 0 {
		fmt.Printf("\nErrors:\n")
		for _, fr := range result.Files {
			if fr.Err != nil {
				fmt.Printf("  - %s: %v\n", fr.Path, fr.Err)
			}
		}
		return fmt.Errorf("%d file(s) failed to ingest", result.Failed)
	}

	fmt.Printf("\nIndex stored at: %s\n", cfg.Storage.DBFolder)
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
