package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"GeoTool/internal/extract"
	"GeoTool/internal/usecase"
)

var extractCmd = &cobra.Command{
	Use:   "extract <matrix.md>",
	Short: "Extract keywords and questions from a D-stage matrix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, _ := cmd.Flags().GetString("client")
		outDir, _ := cmd.Flags().GetString("output")
		strict, _ := cmd.Flags().GetBool("strict")

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read matrix: %w", err)
		}
		res := extract.Extract(string(raw))

		for _, warning := range res.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
		}

		if outDir != "" {
			if client == "" {
				return fmt.Errorf("--output needs --client to name the file")
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			summary, err := usecase.WriteExtraction(outDir, client, res, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "saved %s\n", summary.File)
		}

		if err := printJSON(cmd.OutOrStdout(), usecase.ExtractionFile{
			Keywords:  extract.Limit(res.Keywords, limit),
			Questions: extract.Limit(res.Questions, limit),
		}); err != nil {
			return err
		}
		if strict {
			return res.Err()
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().Int("limit", 10, "maximum items per list (negative for all)")
	extractCmd.Flags().String("client", "", "client name used in the output file name")
	extractCmd.Flags().String("output", "", "directory to write <client>_提取问题.json into")
	extractCmd.Flags().Bool("strict", false, "fail when defaults had to be used")
}
