package commands

import (
	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-product-tracker/internal/jobs"
)

var trackJobFlags jobFlags

func init() {
	trackJobFlags.register(trackCmd)
	rootCmd.AddCommand(trackCmd)
}

var trackCmd = &cobra.Command{
	Use:     "track ASIN [ASIN...]",
	Short:   "Scrape the product page of every given ASIN without filtering.",
	Example: `  tracker track B0C1234567 B0D7654321 --base-url https://www.amazon.de --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := trackJobFlags.baseJob()
		if err != nil {
			return err
		}
		job.Mode = jobs.ModeASIN
		if len(args) > 0 {
			job.ASINs = args
		}
		if err := trackJobFlags.apply(cmd, &job); err != nil {
			return err
		}
		return runJob(cmd.Context(), job, &trackJobFlags)
	},
}
