package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"GeoTool/internal/domain"
	"GeoTool/internal/usecase"
)

var pressureCmd = &cobra.Command{
	Use:   "pressure",
	Short: "Ask AI engines the extracted questions and score brand mentions",
	Long: `Asks every configured engine the client's questions and scores where the
brand keywords appear in each answer. Questions default to the extraction file
written by "geotool run". With --every the test repeats until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := cmd.Flags().GetString("client")
		questionsFile, _ := cmd.Flags().GetString("questions")
		keywords, _ := cmd.Flags().GetStringSlice("keywords")
		questions, _ := cmd.Flags().GetStringSlice("question")
		engines, _ := cmd.Flags().GetStringSlice("engines")
		outDir, _ := cmd.Flags().GetString("output")
		projectID, _ := cmd.Flags().GetString("project")
		every, _ := cmd.Flags().GetDuration("every")

		ctx := cmd.Context()
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if outDir == "" {
			outDir = filepath.Join(a.Config().Output.Dir, client)
		}
		if len(questions) == 0 {
			if questionsFile == "" {
				questionsFile = filepath.Join(outDir, usecase.ExtractionFileName(client))
			}
			extraction, err := usecase.ReadExtraction(questionsFile)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("no questions: run the pipeline first or pass --questions/--question: %w", err)
				}
				return err
			}
			questions = extraction.Questions
		}
		if len(keywords) == 0 {
			keywords = []string{client}
		}

		tester, err := a.PressureTester(projectID != "")
		if err != nil {
			return err
		}
		req := usecase.PressureRequest{
			ClientName: client,
			Keywords:   keywords,
			Questions:  questions,
			Engines:    engines,
			OutputDir:  outDir,
			ProjectID:  projectID,
		}

		if cmd.Flags().Changed("every") {
			return monitor(ctx, cmd, a.Monitor(tester, req, every))
		}

		run, err := tester.Run(ctx, req)
		if err != nil {
			return err
		}
		printOutcome(cmd, run.Outcome)
		printOutcome(cmd, a.Hooks().Run(ctx, "after_pressure", outDir, a.Config().Hooks.AfterPressure))

		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), run.Result)
		}
		printPressure(cmd, run)
		return nil
	},
}

func monitor(ctx context.Context, cmd *cobra.Command, m *usecase.Monitor) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "monitoring, press Ctrl+C to stop")
	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.Stop(shutdown); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d pressure tests completed\n", len(m.Runs()))
	return nil
}

func printPressure(cmd *cobra.Command, run usecase.PressureRun) {
	w := cmd.OutOrStdout()
	res := run.Result
	fmt.Fprintf(w, "%-12s %-8s %-10s %-10s %s\n", "ENGINE", "ANSWERS", "MENTIONED", "FIRST", "AVG SCORE")
	fmt.Fprintf(w, "%-12s %-8s %-10s %-10s %s\n", "------", "-------", "---------", "-----", "---------")
	for _, e := range res.Engines {
		if e.Error != "" {
			fmt.Fprintf(w, "%-12s error: %s\n", e.Engine, e.Error)
			continue
		}
		m := domain.Measure(e.Answers)
		fmt.Fprintf(w, "%-12s %-8d %-10s %-10s %.1f\n", e.Engine, m.Total,
			fmt.Sprintf("%.0f%%", m.MentionRate), fmt.Sprintf("%.0f%%", m.FirstRate), m.AvgScore)
	}
	fmt.Fprintf(w, "\nOverall: %.1f %s", res.Overall.AvgScore, res.Trend.Label())
	if res.Previous != nil {
		fmt.Fprintf(w, " (previous %.1f)", *res.Previous)
	}
	fmt.Fprintln(w)
	if run.ReportFile != "" {
		fmt.Fprintf(w, "Report:  %s\n", run.ReportFile)
	}
	if run.RecordID != "" {
		fmt.Fprintf(w, "Record:  %s\n", run.RecordID)
	}
}

func init() {
	pressureCmd.Flags().String("client", "", "client name")
	pressureCmd.Flags().String("questions", "", "extraction file to read questions from")
	pressureCmd.Flags().StringSlice("question", nil, "question to ask (repeatable, overrides --questions)")
	pressureCmd.Flags().StringSlice("keywords", nil, "brand keywords to look for (default: the client name)")
	pressureCmd.Flags().StringSlice("engines", nil, "engines to ask (default: all configured)")
	pressureCmd.Flags().String("output", "", "directory for the report (default <output.dir>/<client>)")
	pressureCmd.Flags().String("project", "", "project id to record the result on")
	pressureCmd.Flags().Duration("every", 0, "repeat the test at this interval until interrupted (0 uses monitor.interval)")
	_ = pressureCmd.MarkFlagRequired("client")
}
