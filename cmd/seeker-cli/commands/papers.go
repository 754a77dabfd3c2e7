package commands

import (
	"fmt"

	"scholar-seeker-ai/lib/osutil"
	"scholar-seeker-ai/lib/scrapers/arxiv/listing"
	"scholar-seeker-ai/lib/serviceutil"

	"github.com/spf13/cobra"
)

var (
	papersCategory *string
	papersLimit    *int
)

func init() {
	papersCategory = papersCmd.Flags().String("category", "cs.LG", "The arxiv category to list.")
	papersLimit = papersCmd.Flags().Int("limit", 10, "Maximum number of papers to list.")
	rootCmd.AddCommand(papersCmd)
}

var papersCmd = &cobra.Command{
	Use:   "papers [--category <cat>] [--limit <n>]",
	Short: "Lists the most recent paper ids in a category without scanning them.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		ctx := osutil.SignalContext()

		listingCfg := listing.DefaultConfig()
		listingCfg.SiteUrl = cfg.SiteUrl
		resolver, err := listing.NewResolver(createBrowser(ctx, cfg), nil, listingCfg)
		if err != nil {
			serviceutil.Fatal("failed to initialize resolver", err)
		}

		ids, err := resolver.Recent(ctx, *papersCategory, *papersLimit)
		if err != nil {
			serviceutil.Fatal("failed to resolve papers", err)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}
