package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past pipeline runs from the local history",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := cmd.Flags().GetString("client")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		history := a.History()
		if history == nil {
			return errors.New("history is disabled: set history.path in the config")
		}
		runs, err := history.ListRuns(ctx, client, limit)
		if err != nil {
			return err
		}

		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tCLIENT\tEXECUTED\tSTAGES\tOUTPUT")
		fmt.Fprintln(tw, "---\t------\t--------\t------\t------")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
				shortID(r.RunID), r.ClientName, r.ExecutionTime.Format("2006-01-02 15:04"),
				r.SuccessCount(), len(r.Results), r.OutputDir)
		}
		return tw.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().String("client", "", "only runs of this client")
	historyCmd.Flags().Int("limit", 20, "maximum number of runs")
}
