package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/menu"
	"github.com/pipedeck/pipedeck/internal/pipeline"
	"github.com/pipedeck/pipedeck/internal/repoauth"
	"github.com/spf13/cobra"
)

var (
	startArgs    []string
	startDocker  bool
	startFollow  bool
	startNoInput bool

	createName       string
	createType       string
	createRepoURL    string
	createBranch     string
	createAuthMethod string
	createUsername   string
	createPassword   string
	createKeyFile    string
	createSkipPrompt bool

	watchInterval   time.Duration
	watchBranch     string
	watchUsername   string
	watchPassword   string
	watchKeyFile    string
	watchAuthMethod string
)

var pipelineTypes = []string{"golang", "java", "python", "cpp", "ruby", "nodejs"}

// pipelinesCmd represents the pipelines command
var pipelinesCmd = &cobra.Command{
	Use:     "pipelines",
	Aliases: []string{"pipeline", "p"},
	Short:   "Manage pipelines",
	Long:    `List, inspect, start, pull, create and watch pipelines.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var pipelinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pipelines with their latest run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireLogin(cmd.Context(), s); err != nil {
			return err
		}

		latest, err := s.pipelines.LatestRuns(cmd.Context())
		if err != nil {
			return s.fail(err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tLATEST RUN\tSTATUS\tSTARTED")
		for _, item := range latest {
			run, status, started := "-", "-", "-"
			if item.Run.ID > 0 {
				run = "#" + strconv.Itoa(item.Run.ID)
				status = item.Run.Status
				if !item.Run.StartDate.IsZero() {
					started = item.Run.StartDate.Local().Format(time.RFC3339)
				}
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", item.Pipeline.ID, item.Pipeline.Name, item.Pipeline.Type, run, status, started)
		}
		return w.Flush()
	},
}

var pipelinesGetCmd = &cobra.Command{
	Use:   "get [pipeline-id]",
	Short: "Get pipeline details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "pipeline")
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

		p, err := s.pipelines.Get(cmd.Context(), id)
		if err != nil {
			return s.fail(err)
		}
		PrintJSON(cmd.OutOrStdout(), p)
		return nil
	},
}

var pipelinesStartCmd = &cobra.Command{
	Use:   "start [pipeline-id]",
	Short: "Start a pipeline",
	Long: `Start a pipeline. Pipelines whose jobs take arguments ask for the
values unless they are all given with --arg.

Examples:
  pipedeck-ctl pipelines start 3
  pipedeck-ctl pipelines start 3 --arg env=prod --arg dry_run=false --follow`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "pipeline")
		if err != nil {
			return err
		}
		values, err := parseArgFlags(startArgs)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireLogin(cmd.Context(), s); err != nil {
			return err
		}

		p, err := s.pipelines.Get(ctx, id)
		if err != nil {
			return s.fail(err)
		}
		if cmd.Flags().Changed("docker") {
			p.Docker = startDocker
		}

		nav := &recordingNavigator{}
		if err := s.pipelines.DecideAndStart(ctx, nav, *p); err != nil {
			return &reportedError{err}
		}

		if nav.wantsParams() {
			required := pipeline.RequiredArgs(*p)
			for _, i := range fillArgs(required, values) {
				if startNoInput {
					return fmt.Errorf("missing value for argument %q", required[i].Key)
				}
				if required[i].Value, err = promptArgument(required[i]); err != nil {
					return err
				}
			}
			if _, err := s.pipelines.StartWithArgs(ctx, nav, *p, required); err != nil {
				return &reportedError{err}
			}
		}

		runID := 0
		if nav.last != nil && nav.last.Path == menu.DetailPath {
			runID, _ = strconv.Atoi(nav.last.Query.Get("runid"))
		}
		out := cmd.OutOrStdout()
		if runID == 0 {
			fmt.Fprintf(out, "Pipeline %q started.\n", p.Name)
			return nil
		}
		fmt.Fprintf(out, "Pipeline %q started as run #%d.\n", p.Name, runID)
		if !startFollow {
			fmt.Fprintf(out, "Follow it with: pipedeck-ctl runs logs %d %d --follow\n", p.ID, runID)
			return nil
		}
		return followLogs(ctx, s, out, p.ID, runID)
	},
}

var pipelinesPullCmd = &cobra.Command{
	Use:   "pull [pipeline-id]",
	Short: "Pull the latest source of a pipeline and rebuild it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "pipeline")
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

		p, err := s.pipelines.Get(cmd.Context(), id)
		if err != nil {
			return s.fail(err)
		}
		if err := s.pipelines.Pull(cmd.Context(), *p); err != nil {
			return &reportedError{err}
		}
		return nil
	},
}

var pipelinesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pipeline from a git repository",
	Long: `Create a pipeline from a git repository.
Missing values are prompted for; the branch is picked from the remote's branches.

Examples:
  # Interactive mode
  pipedeck-ctl pipelines create

  # Using flags (non-interactive)
  pipedeck-ctl pipelines create --name api --type golang --repo https://github.com/org/api --branch refs/heads/main --yes`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireLogin(cmd.Context(), s); err != nil {
			return err
		}

		authOpts := repoauth.Options{
			Method:   repoauth.NormalizeMethod(createAuthMethod),
			Username: createUsername,
			Password: createPassword,
		}
		if createKeyFile != "" {
			key, err := os.ReadFile(createKeyFile)
			if err != nil {
				return fmt.Errorf("error reading key file: %w", err)
			}
			authOpts.Key = string(key)
			authOpts.Method = repoauth.MethodSSHKey
		}

		req := api.CreatePipeline{
			Name: createName,
			Type: createType,
			Repo: api.GitRepo{URL: createRepoURL, SelectedBranch: createBranch},
		}

		if createSkipPrompt {
			if req.Name == "" || req.Repo.URL == "" {
				return fmt.Errorf("name and repo are required when using --yes")
			}
			if req.Type == "" {
				req.Type = pipelineTypes[0]
			}
		} else if err := promptCreate(ctx, &req, authOpts); err != nil {
			return err
		}

		if err := repoauth.Validate(req.Repo.URL, authOpts); err != nil {
			return err
		}
		switch authOpts.Method {
		case repoauth.MethodBasic:
			req.Repo.Username = authOpts.Username
			req.Repo.Password = authOpts.Password
		case repoauth.MethodSSHKey:
			req.Repo.PrivateKey = &api.PrivateKey{Key: repoauth.NormalizeKey(authOpts.Key), Username: authOpts.Username}
		}

		if err := s.pipelines.Create(ctx, req); err != nil {
			return &reportedError{err}
		}
		return nil
	},
}

var pipelinesWatchCmd = &cobra.Command{
	Use:   "watch [pipeline-id]",
	Short: "Pull a pipeline whenever its source branch gets a new commit",
	Long: `Poll the source branch of a pipeline and pull the pipeline each time
the branch head moves. Runs until interrupted or a pull fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "pipeline")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireLogin(cmd.Context(), s); err != nil {
			return err
		}

		p, err := s.pipelines.Get(ctx, id)
		if err != nil {
			return s.fail(err)
		}
		if p.Repo == nil {
			p.Repo = &api.GitRepo{}
		}
		if watchBranch != "" {
			p.Repo.SelectedBranch = watchBranch
		}

		authOpts := repoauth.Options{
			Method:   repoauth.NormalizeMethod(watchAuthMethod),
			Username: watchUsername,
			Password: watchPassword,
		}
		if watchKeyFile != "" {
			key, err := os.ReadFile(watchKeyFile)
			if err != nil {
				return fmt.Errorf("error reading key file: %w", err)
			}
			authOpts.Key = string(key)
			authOpts.Method = repoauth.MethodSSHKey
		}

		out := cmd.OutOrStdout()
		watcher := &pipeline.Watcher{
			Helper:   s.pipelines,
			Auth:     authOpts,
			Interval: watchInterval,
			OnPull: func(commit string) {
				fmt.Fprintf(out, "Pulled %s at %s\n", commit, time.Now().Format(time.RFC3339))
			},
		}
		fmt.Fprintf(out, "Watching %q, press Ctrl+C to stop.\n", p.Name)
		err = watcher.Watch(ctx, *p)
		switch {
		case err == nil, ctx.Err() != nil, errors.Is(err, pipeline.ErrPollingStopped):
			return nil
		case p.Repo.URL == "":
			return err
		default:
			return &reportedError{err}
		}
	},
}

func promptCreate(ctx context.Context, req *api.CreatePipeline, authOpts repoauth.Options) error {
	required := func(label string) func(string) error {
		return func(input string) error {
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("%s is required", label)
			}
			return nil
		}
	}

	var err error
	if req.Repo.URL == "" {
		prompt := promptui.Prompt{Label: "Git Repository URL", Validate: required("repo url")}
		if req.Repo.URL, err = prompt.Run(); err != nil {
			return err
		}
	}

	if req.Repo.SelectedBranch == "" {
		branches, err := pipeline.Branches(ctx, req.Repo.URL, authOpts)
		if err != nil {
			return err
		}
		if len(branches) == 0 {
			return fmt.Errorf("repository %s has no branches", repoauth.ShortName(req.Repo.URL))
		}
		sel := promptui.Select{Label: "Branch", Items: branches}
		if _, req.Repo.SelectedBranch, err = sel.Run(); err != nil {
			return err
		}
	}

	if req.Name == "" {
		prompt := promptui.Prompt{Label: "Pipeline Name", Validate: required("pipeline name")}
		if req.Name, err = prompt.Run(); err != nil {
			return err
		}
	}

	if req.Type == "" {
		sel := promptui.Select{Label: "Pipeline Type", Items: pipelineTypes}
		if _, req.Type, err = sel.Run(); err != nil {
			return err
		}
	}
	return nil
}

func promptArgument(arg api.Argument) (string, error) {
	label := arg.Description
	if label == "" {
		label = arg.Key
	}
	if arg.Type == "boolean" {
		sel := promptui.Select{Label: label, Items: []string{"true", "false"}}
		_, value, err := sel.Run()
		return value, err
	}
	prompt := promptui.Prompt{Label: label, Default: arg.Value}
	return prompt.Run()
}

func followLogs(ctx context.Context, s *session, out io.Writer, pipelineID, runID int) error {
	printed := 0
	err := s.pipelines.Follow(ctx, pipelineID, runID, s.cfg.PollInterval, func(l *api.JobLog) {
		if len(l.Log) > printed {
			fmt.Fprint(out, l.Log[printed:])
			printed = len(l.Log)
		}
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil || errors.Is(err, pipeline.ErrPollingStopped):
		return nil
	default:
		return &reportedError{err}
	}
}

func parseID(value, kind string) (int, error) {
	id, err := strconv.Atoi(value)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, value)
	}
	return id, nil
}

func init() {
	pipelinesStartCmd.Flags().StringArrayVar(&startArgs, "arg", nil, "Argument value as key=value (repeatable)")
	pipelinesStartCmd.Flags().BoolVar(&startDocker, "docker", false, "Run the pipeline in docker (default: pipeline setting)")
	pipelinesStartCmd.Flags().BoolVarP(&startFollow, "follow", "f", false, "Follow the run's log")
	pipelinesStartCmd.Flags().BoolVar(&startNoInput, "no-input", false, "Fail instead of prompting for missing arguments")

	pipelinesCreateCmd.Flags().StringVar(&createName, "name", "", "Pipeline name")
	pipelinesCreateCmd.Flags().StringVar(&createType, "type", "", "Pipeline type: "+strings.Join(pipelineTypes, ", "))
	pipelinesCreateCmd.Flags().StringVar(&createRepoURL, "repo", "", "Git repository URL")
	pipelinesCreateCmd.Flags().StringVar(&createBranch, "branch", "", "Branch to build, e.g. refs/heads/main")
	pipelinesCreateCmd.Flags().StringVar(&createAuthMethod, "auth-method", "public", "Auth method: public, basic or ssh_key")
	pipelinesCreateCmd.Flags().StringVar(&createUsername, "username", "", "Git username")
	pipelinesCreateCmd.Flags().StringVar(&createPassword, "password", "", "Git password or token")
	pipelinesCreateCmd.Flags().StringVar(&createKeyFile, "key-file", "", "SSH private key file for private repos")
	pipelinesCreateCmd.Flags().BoolVarP(&createSkipPrompt, "yes", "y", false, "Skip interactive prompts")

	pipelinesWatchCmd.Flags().DurationVar(&watchInterval, "interval", pipeline.DefaultWatchInterval, "How often the branch is checked")
	pipelinesWatchCmd.Flags().StringVar(&watchBranch, "branch", "", "Branch to watch (default: the pipeline's branch)")
	pipelinesWatchCmd.Flags().StringVar(&watchAuthMethod, "auth-method", "public", "Auth method: public, basic or ssh_key")
	pipelinesWatchCmd.Flags().StringVar(&watchUsername, "username", "", "Git username")
	pipelinesWatchCmd.Flags().StringVar(&watchPassword, "password", "", "Git password or token")
	pipelinesWatchCmd.Flags().StringVar(&watchKeyFile, "key-file", "", "SSH private key file for private repos")

	pipelinesCmd.AddCommand(pipelinesListCmd)
	pipelinesCmd.AddCommand(pipelinesGetCmd)
	pipelinesCmd.AddCommand(pipelinesStartCmd)
	pipelinesCmd.AddCommand(pipelinesPullCmd)
	pipelinesCmd.AddCommand(pipelinesCreateCmd)
	pipelinesCmd.AddCommand(pipelinesWatchCmd)
	rootCmd.AddCommand(pipelinesCmd)
}
