package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pipedeck/pipedeck/internal/client"
	"github.com/spf13/cobra"
)

var logsFollow bool

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"run"},
	Short:   "Inspect pipeline runs",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list [pipeline-id]",
	Short: "List the runs of a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipelineID, err := parseID(args[0], "pipeline")
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireLogin(cmd.Context(), s); err != nil {
			return err
		}

		runs, err := s.pipelines.Runs(cmd.Context(), pipelineID)
		if err != nil {
			return s.fail(err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tREASON\tSTARTED\tFINISHED")
		for _, run := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", run.ID, run.Status, fallback(run.StartReason, "-"), formatDate(run.StartDate), formatDate(run.FinishDate))
		}
		return w.Flush()
	},
}

var runsGetCmd = &cobra.Command{
	Use:   "get [pipeline-id] [run-id]",
	Short: "Get run details",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipelineID, runID, err := parseRunIDs(args)
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireLogin(cmd.Context(), s); err != nil {
			return err
		}

		run, err := s.pipelines.Run(cmd.Context(), pipelineID, runID)
		if err != nil {
			return s.fail(err)
		}
		PrintJSON(cmd.OutOrStdout(), run)
		return nil
	},
}

var runsLogsCmd = &cobra.Command{
	Use:   "logs [pipeline-id] [run-id]",
	Short: "Print the log of a run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipelineID, runID, err := parseRunIDs(args)
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireLogin(cmd.Context(), s); err != nil {
			return err
		}

		if logsFollow {
			return followLogs(cmd.Context(), s, cmd.OutOrStdout(), pipelineID, runID)
		}
		log, err := s.pipelines.JobLog(cmd.Context(), pipelineID, runID, client.HideProgressBar())
		if err != nil {
			return s.fail(err)
		}
		fmt.Fprint(cmd.OutOrStdout(), log.Log)
		return nil
	},
}

func parseRunIDs(args []string) (int, int, error) {
	pipelineID, err := parseID(args[0], "pipeline")
	if err != nil {
		return 0, 0, err
	}
	runID, err := parseID(args[1], "run")
	if err != nil {
		return 0, 0, err
	}
	return pipelineID, runID, nil
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format(time.RFC3339)
}

func init() {
	runsLogsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Poll the log until the run finishes")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsGetCmd)
	runsCmd.AddCommand(runsLogsCmd)
	rootCmd.AddCommand(runsCmd)
}
