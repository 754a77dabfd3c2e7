package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"scholar-seeker-ai/lib/osutil"
	"scholar-seeker-ai/lib/pacer"
	"scholar-seeker-ai/lib/pagecache"
	"scholar-seeker-ai/lib/scrapers/arxiv/endorse"
	"scholar-seeker-ai/lib/scrapers/arxiv/listing"
	"scholar-seeker-ai/lib/serviceutil"
	"scholar-seeker-ai/pkg/migrations"
	"scholar-seeker-ai/pkg/scanstore"
	"scholar-seeker-ai/services/endorser"

	"github.com/spf13/cobra"
)

var (
	scanCategory *string
	scanPapers   *[]string
	scanLimit    *int
	scanDelay    *int
	scanOut      *string
	scanFind     *[]string
	scanNoSave   *bool
)

func init() {
	scanCategory = scanCmd.Flags().String("category", "cs.LG", "The arxiv category to scan.")
	scanPapers = scanCmd.Flags().StringSlice("papers", nil, "Explicit paper ids to scan instead of a category listing.")
	scanLimit = scanCmd.Flags().Int("limit", 10, "Maximum number of papers to scan from the listing.")
	scanDelay = scanCmd.Flags().Int("delay", 0, "Seconds between paper fetches, overrides the config.")
	scanOut = scanCmd.Flags().String("out", "", "Write the json report to this file instead of stdout.")
	scanFind = scanCmd.Flags().StringSlice("find", nil, "Highlight papers whose endorsers match these names.")
	scanNoSave = scanCmd.Flags().Bool("no-save", false, "Skip recording the scan in the history db.")
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan [--category <cat>] [--papers <id,id,...>] [--limit <n>]",
	Short: "Scans papers' endorsement pages and reports who can endorse.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		creds := readCredentials()

		interval := pacer.DefaultInterval
		if cfg.DelaySeconds > 0 {
			interval = time.Duration(cfg.DelaySeconds) * time.Second
		}
		if *scanDelay > 0 {
			interval = time.Duration(*scanDelay) * time.Second
		}

		ctx := osutil.SignalContext()
		b := createBrowser(ctx, cfg)

		var cache *pagecache.Cache
		if cfg.CacheDir != "" {
			opened, err := pagecache.Open(cfg.CacheDir)
			if err != nil {
				serviceutil.Fatal("failed to open page cache", err)
			}
			defer opened.Close()
			cache = &opened
		}

		listingCfg := listing.DefaultConfig()
		listingCfg.SiteUrl = cfg.SiteUrl
		resolver, err := listing.NewResolver(b, cache, listingCfg)
		if err != nil {
			serviceutil.Fatal("failed to initialize resolver", err)
		}

		fetchCfg := endorse.DefaultFetchConfig()
		fetchCfg.SiteUrl = cfg.SiteUrl

		service := endorser.NewService(
			createAuthManager(b, cfg),
			resolver,
			endorse.NewFetcher(b, fetchCfg),
			endorse.NewParser(endorse.DefaultParseConfig()),
			pacer.New(interval),
		)

		startedAt := time.Now()
		report, err := service.Scan(ctx, endorser.Request{
			Credentials: creds,
			Category:    *scanCategory,
			Papers:      *scanPapers,
			Limit:       *scanLimit,
		})
		if err != nil && len(report.Results) == 0 {
			serviceutil.Fatal("scan failed", err)
		}
		if err != nil {
			slog.Warn("scan interrupted, reporting partial results", "err", err)
		}

		// the report comes first: accumulated results must reach the
		// caller even when recording the run fails afterwards
		out := os.Stdout
		if *scanOut != "" {
			out, err = os.Create(*scanOut)
			if err != nil {
				serviceutil.Fatal("failed to create report file", err)
			}
			defer out.Close()
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(report)
		if err != nil {
			serviceutil.Fatal("failed to write report", err)
		}

		if len(*scanFind) > 0 {
			for _, rec := range report.FindEndorsers(*scanFind) {
				slog.Info("matched endorser",
					"arxiv_id", rec.PaperId,
					"endorsers", strings.Join(rec.Endorsers, ", "))
			}
		}

		if !*scanNoSave {
			db, err := migrations.OpenAndApplySchema(scanstore.Schema, cfg.HistoryDb)
			if err != nil {
				serviceutil.Fatal("failed to open history db", err)
			}
			defer db.Close()

			// ctx is cancelled after Ctrl+C, the partial run still
			// gets recorded
			runId, err := scanstore.NewStore(db).Push(context.WithoutCancel(ctx), report, startedAt)
			if err != nil {
				serviceutil.Fatal("failed to record scan", err)
			}
			slog.Info("scan recorded", "run_id", runId, "db", cfg.HistoryDb)
		}
	},
}
