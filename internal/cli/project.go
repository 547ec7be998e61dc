package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"GeoTool/internal/domain"
	"GeoTool/internal/usecase"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage client projects on the collaboration platform",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <client>",
	Short: "Create a project with its folder and notify the team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		industry, _ := cmd.Flags().GetString("industry")
		contact, _ := cmd.Flags().GetString("contact")
		description, _ := cmd.Flags().GetString("description")
		statusFlag, _ := cmd.Flags().GetString("status")

		status, err := domain.ParseProjectStatus(statusFlag)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		m, err := a.Integration()
		if err != nil {
			return err
		}
		created, err := m.CreateNewProject(ctx, usecase.NewProject{
			ClientName:  args[0],
			Industry:    industry,
			Contact:     contact,
			Description: description,
			Status:      status,
			StartDate:   time.Now(),
		})
		if err != nil {
			return err
		}
		printOutcome(cmd, created.Outcome)

		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), created)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project:  %s\n", created.ID)
		if created.FolderID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Folder:   %s\n", created.FolderID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Platform: %s\n", m.CurrentPlatform())
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")

		var filter *domain.ProjectStatus
		if statusFilter != "" {
			status, err := domain.ParseProjectStatus(statusFilter)
			if err != nil {
				return err
			}
			filter = &status
		}

		ctx := cmd.Context()
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		m, err := a.Integration()
		if err != nil {
			return err
		}
		projects, err := m.ListProjects(ctx, filter)
		if err != nil {
			return err
		}

		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), projects)
		}
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCLIENT\tINDUSTRY\tSTATUS\tSTART")
		fmt.Fprintln(tw, "--\t------\t--------\t------\t-----")
		for _, p := range projects {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.ClientName, dash(p.Industry), p.Status, formatDate(p.StartDate))
		}
		return tw.Flush()
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show one project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		m, err := a.Integration()
		if err != nil {
			return err
		}
		p, err := m.GetProject(ctx, args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("project %q not found", args[0])
		}

		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), p)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "ID:          %s\n", p.ID)
		fmt.Fprintf(w, "Client:      %s\n", p.ClientName)
		fmt.Fprintf(w, "Industry:    %s\n", dash(p.Industry))
		fmt.Fprintf(w, "Contact:     %s\n", dash(p.Contact))
		fmt.Fprintf(w, "Status:      %s (%s)\n", p.Status, p.Status.Label())
		fmt.Fprintf(w, "Start:       %s\n", formatDate(p.StartDate))
		if p.Description != "" {
			fmt.Fprintf(w, "Description: %s\n", p.Description)
		}
		return nil
	},
}

var projectStatusCmd = &cobra.Command{
	Use:   "status <project-id> <status>",
	Short: "Set the status of a project (pending|in_progress|completed|paused)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := domain.ParseProjectStatus(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		m, err := a.Integration()
		if err != nil {
			return err
		}
		if !m.UpdateProjectStatus(ctx, args[0], status) {
			return fmt.Errorf("project %s: status not updated", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %s → %s\n", args[0], status.Label())
		return nil
	},
}

var projectCompleteCmd = &cobra.Command{
	Use:   "complete <project-id>",
	Short: "Close a project, build the delivery document and upload artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := cmd.Flags().GetString("client")
		dir, _ := cmd.Flags().GetString("dir")

		ctx := cmd.Context()
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if dir == "" {
			dir = filepath.Join(a.Config().Output.Dir, client)
		}
		results := usecase.CollectResults(dir, client)
		if len(results) == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: no artifacts found in %s\n", dir)
		}

		m, err := a.Integration()
		if err != nil {
			return err
		}
		done, err := m.CompleteProject(ctx, args[0], client, results)
		if err != nil {
			return err
		}
		printOutcome(cmd, done.Outcome)

		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), done)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Document: %s\n", done.DocURL)
		if len(done.Uploaded) > 0 {
			fmt.Fprintf(w, "Uploaded: %s\n", strings.Join(done.Uploaded, ", "))
		}
		if len(done.Skipped) > 0 {
			fmt.Fprintf(w, "Skipped:  %s\n", strings.Join(done.Skipped, ", "))
		}
		return nil
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func init() {
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectStatusCmd)
	projectCmd.AddCommand(projectCompleteCmd)

	projectCreateCmd.Flags().String("industry", "", "client industry")
	projectCreateCmd.Flags().String("contact", "", "client contact")
	projectCreateCmd.Flags().String("description", "", "project description")
	projectCreateCmd.Flags().String("status", string(domain.ProjectPending), "initial status")

	projectListCmd.Flags().String("status", "", "Filter by status (pending|in_progress|completed|paused)")

	projectCompleteCmd.Flags().String("client", "", "client name used in artifact file names")
	projectCompleteCmd.Flags().String("dir", "", "artifact directory (default <output.dir>/<client>)")
	_ = projectCompleteCmd.MarkFlagRequired("client")
}
