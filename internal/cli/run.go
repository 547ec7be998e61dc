package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"GeoTool/internal/domain"
	"GeoTool/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the D→B→C→A pipeline for a client",
	Long: `Runs the four stage prompts in order and writes one markdown artifact per
stage into the output directory. A failed stage does not stop later stages.
With --project (or --create-project) every stage is tracked on the platform;
with --complete the project is closed and the delivery document built.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := cmd.Flags().GetString("client")
		input, _ := cmd.Flags().GetString("input")
		outDir, _ := cmd.Flags().GetString("output")
		projectID, _ := cmd.Flags().GetString("project")
		create, _ := cmd.Flags().GetBool("create-project")
		industry, _ := cmd.Flags().GetString("industry")
		contact, _ := cmd.Flags().GetString("contact")
		complete, _ := cmd.Flags().GetBool("complete")

		ctx := cmd.Context()
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if create {
			m, err := a.Integration()
			if err != nil {
				return err
			}
			created, err := m.CreateNewProject(ctx, usecase.NewProject{
				ClientName: client,
				Industry:   industry,
				Contact:    contact,
				Status:     domain.ProjectInProgress,
			})
			if err != nil {
				return err
			}
			projectID = created.ID
			fmt.Fprintf(cmd.OutOrStdout(), "项目已创建: %s\n", projectID)
			printOutcome(cmd, created.Outcome)
		}
		if complete && projectID == "" {
			return fmt.Errorf("--complete needs --project or --create-project")
		}

		pipeline, err := a.Pipeline(projectID != "")
		if err != nil {
			return err
		}
		summary, err := pipeline.Run(ctx, usecase.RunRequest{
			ClientName: client,
			InputFile:  input,
			OutputDir:  outDir,
			ProjectID:  projectID,
		})
		if err != nil {
			return err
		}

		printOutcome(cmd, a.Hooks().Run(ctx, "after_run", summary.OutputDir, a.Config().Hooks.AfterRun))

		if complete {
			m, err := a.Integration()
			if err != nil {
				return err
			}
			done, err := m.CompleteProject(ctx, projectID, client, usecase.Results(summary))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "交付文档: %s\n", done.DocURL)
			printOutcome(cmd, done.Outcome)
		}

		if jsonOutput() {
			if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
		} else {
			printSummary(cmd, summary)
		}
		return summary.Err()
	},
}

func printSummary(cmd *cobra.Command, summary domain.RunSummary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "客户: %s\n", summary.ClientName)
	fmt.Fprintf(w, "输出目录: %s\n", summary.OutputDir)
	fmt.Fprintf(w, "%-6s %-10s %-8s %s\n", "STAGE", "NAME", "STATUS", "FILE / ERROR")
	fmt.Fprintf(w, "%-6s %-10s %-8s %s\n",
		strings.Repeat("-", 6),
		strings.Repeat("-", 10),
		strings.Repeat("-", 8),
		strings.Repeat("-", 12))
	for _, r := range summary.Results {
		detail := filepath.Base(r.File)
		if r.Status == domain.StageRunFailed {
			detail = r.Error
		}
		fmt.Fprintf(w, "%-6s %-10s %-8s %s\n", r.Stage, r.Name, r.Status, detail)
	}
	if summary.Extraction != nil {
		note := ""
		if summary.Extraction.Degraded {
			note = "（使用默认值）"
		}
		fmt.Fprintf(w, "提取: %d 个关键词, %d 个问题%s\n", len(summary.Extraction.Keywords), len(summary.Extraction.Questions), note)
	}
	fmt.Fprintf(w, "状态: %d/%d 个 Prompt 成功执行\n", summary.SuccessCount(), len(summary.Results))
}

func printOutcome(cmd *cobra.Command, outcome domain.Outcome) {
	for _, d := range outcome.Degradations {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", d.Op, d.Reason)
	}
}

func init() {
	runCmd.Flags().String("client", "", "client name")
	runCmd.Flags().String("input", "", "client input card (JSON or YAML)")
	runCmd.Flags().String("output", "", "output directory (default <output.dir>/<client>)")
	runCmd.Flags().String("project", "", "existing project id to track stages on")
	runCmd.Flags().Bool("create-project", false, "create a project for the client before running")
	runCmd.Flags().String("industry", "", "industry of the created project")
	runCmd.Flags().String("contact", "", "client contact of the created project")
	runCmd.Flags().Bool("complete", false, "complete the project and build the delivery document after the run")
	_ = runCmd.MarkFlagRequired("client")
	_ = runCmd.MarkFlagRequired("input")
}
