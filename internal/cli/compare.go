package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"GeoTool/internal/report"
)

const comparisonFileName = "对比报告.md"

var compareCmd = &cobra.Command{
	Use:   "compare <before.json> <after.json>",
	Short: "Compare two pressure-test results before and after optimisation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := cmd.Flags().GetString("client")
		outDir, _ := cmd.Flags().GetString("output")

		before, err := report.LoadSnapshot(args[0])
		if err != nil {
			return err
		}
		after, err := report.LoadSnapshot(args[1])
		if err != nil {
			return err
		}

		c := report.Comparison{
			ClientName:  client,
			Before:      before,
			After:       after,
			GeneratedAt: time.Now(),
		}

		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), report.QuestionChanges(before.Answers, after.Answers))
		}

		text := report.Compare(c)
		if outDir == "" {
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		path := filepath.Join(outDir, comparisonFileName)
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return fmt.Errorf("write comparison report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", path)
		return nil
	},
}

func init() {
	compareCmd.Flags().String("client", "", "client name shown in the report")
	compareCmd.Flags().String("output", "", "directory to write 对比报告.md into (default: print)")
}
