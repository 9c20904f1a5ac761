package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ukmoviecal/internal/config"
	"ukmoviecal/internal/pipeline"
)

func generateCmd(g *globalFlags) *cobra.Command {
	var (
		source        string
		year          int
		month         int
		months        int
		bucket        string
		mode          string
		topN          int
		minPopularity float64
		minVotes      int
		enrich        bool
		description   string
		output        string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the pipeline once and write the calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, err := loadConfig(g, func(c *config.Config) {
				if flags.Changed("source") {
					c.Source = source
				}
				if flags.Changed("year") {
					c.Window.Year = year
				}
				if flags.Changed("month") {
					c.Window.Month = month
				}
				if flags.Changed("months") {
					c.Window.Months = months
				}
				if flags.Changed("bucket") {
					c.Window.Bucket = bucket
				}
				if flags.Changed("mode") {
					c.Selection.Mode = mode
				}
				if flags.Changed("top-n") {
					c.Selection.TopN = topN
				}
				if flags.Changed("min-popularity") {
					c.Selection.MinPopularity = minPopularity
				}
				if flags.Changed("min-votes") {
					c.Selection.MinVoteCount = minVotes
				}
				if flags.Changed("enrich") {
					c.Enrich = enrich
				}
				if flags.Changed("description") {
					c.Calendar.Description = description
				}
				if flags.Changed("output") {
					c.Calendar.Output = output
				}
			})
			if err != nil {
				return err
			}

			opts, err := pipeline.FromConfig(cfg, time.Now())
			if err != nil {
				return err
			}
			opts.Stdout = cmd.OutOrStdout()

			res, err := pipeline.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			// Keep stdout clean when the calendar itself goes there.
			summary := cmd.OutOrStdout()
			if cfg.Calendar.Output == pipeline.StdoutPath {
				summary = cmd.ErrOrStderr()
			}
			printSummary(summary, res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&source, "source", "", "Collector: tmdb or scrape")
	f.IntVar(&year, "year", 0, "Pin the run to a calendar year")
	f.IntVar(&month, "month", 0, "Narrow --year to one month (1-12)")
	f.IntVar(&months, "months", 0, "Length of the rolling range in months")
	f.StringVar(&bucket, "bucket", "", "Bucket granularity: month or year")
	f.StringVar(&mode, "mode", "", "Selection: rank, threshold or both")
	f.IntVar(&topN, "top-n", 0, "Releases kept per bucket in rank mode (negative keeps all)")
	f.Float64Var(&minPopularity, "min-popularity", 0, "Minimum popularity in threshold mode")
	f.IntVar(&minVotes, "min-votes", 0, "Minimum vote count in threshold mode")
	f.BoolVar(&enrich, "enrich", true, "Fetch runtime, genres and trailer for selected releases")
	f.StringVar(&description, "description", "", "Event descriptions: full, auto or omit")
	f.StringVarP(&output, "output", "o", "", `Output file ("-" for stdout)`)
	return cmd
}

func printSummary(w io.Writer, res pipeline.Result) {
	for _, b := range res.Buckets {
		fmt.Fprintf(w, "%s: %d top releases\n", b.Key, b.Selected)
	}
	fmt.Fprintf(w, "ICS file generated with %d releases.\n", res.Events)
}
