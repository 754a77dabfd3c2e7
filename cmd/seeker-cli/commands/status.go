package commands

import (
	"fmt"
	"os"
	"strings"

	"scholar-seeker-ai/lib/osutil"
	"scholar-seeker-ai/lib/scrapers/arxiv/session"
	"scholar-seeker-ai/lib/serviceutil"
	"scholar-seeker-ai/pkg/migrations"
	"scholar-seeker-ai/pkg/scanstore"

	"github.com/spf13/cobra"
)

var statusPaper *string

func init() {
	statusPaper = statusCmd.Flags().String("paper", "", "Show the last stored outcome for this paper id.")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [--paper <id>]",
	Short: "Shows the saved session and recent scan history.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		ctx := osutil.SignalContext()

		store := session.NewStore(cfg.SessionFile)
		if sess, ok := store.Load(); ok {
			fmt.Printf("session: saved at %s (%s)\n", sess.ObtainedAt.Format("2006-01-02 15:04"), store.Path())
		} else {
			fmt.Println("session: none saved")
		}

		if _, err := os.Stat(cfg.HistoryDb); os.IsNotExist(err) {
			fmt.Println("history: no scans recorded")
			return
		}
		db, err := migrations.OpenAndApplySchema(scanstore.Schema, cfg.HistoryDb)
		if err != nil {
			serviceutil.Fatal("failed to open history db", err)
		}
		defer db.Close()
		history := scanstore.NewStore(db)

		if *statusPaper != "" {
			status, ok, err := history.LastChecked(ctx, *statusPaper)
			if err != nil {
				serviceutil.Fatal("failed to query paper", err)
			}
			if !ok {
				fmt.Printf("paper %s: never scanned\n", *statusPaper)
				return
			}
			fmt.Printf("paper %s: checked %s\n", *statusPaper, status.CheckedAt.Format("2006-01-02 15:04"))
			if status.Record.Error != nil {
				fmt.Printf("  failed: %s\n", *status.Record.Error)
				return
			}
			fmt.Printf("  authors:   %s\n", strings.Join(status.Record.Authors, ", "))
			fmt.Printf("  endorsers: %s\n", strings.Join(status.Record.Endorsers, ", "))
			return
		}

		runs, err := history.RecentRuns(ctx, 10)
		if err != nil {
			serviceutil.Fatal("failed to query history", err)
		}
		if len(runs) == 0 {
			fmt.Println("history: no scans recorded")
			return
		}
		for _, run := range runs {
			fmt.Printf("run %d: %s, %d papers, %s\n",
				run.Id, run.Category, run.PapersScanned, run.StartedAt.Format("2006-01-02 15:04"))
		}
	},
}
