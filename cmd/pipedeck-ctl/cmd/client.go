package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/auth"
	"github.com/pipedeck/pipedeck/internal/client"
	"github.com/pipedeck/pipedeck/internal/config"
	"github.com/pipedeck/pipedeck/internal/credentials"
	"github.com/pipedeck/pipedeck/internal/menu"
	"github.com/pipedeck/pipedeck/internal/notify"
	"github.com/pipedeck/pipedeck/internal/pipeline"
	"github.com/pipedeck/pipedeck/internal/state"
	"github.com/pipedeck/pipedeck/internal/store"
	"github.com/pipedeck/pipedeck/internal/vault"
	"github.com/spf13/viper"
)

// session bundles everything a command needs to talk to the pipeline server.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store.Store
	state     *state.App
	gateway   *auth.Gateway
	client    *client.Client
	presenter *notify.Presenter
	pipelines *pipeline.Helper
	vault     *vault.Vault
}

// openSession loads the configuration, opens the session store and restores
// a previous login.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.Open(ctx, cfg.StorageDriver, cfg.DataDir, cfg.StorageDSN)
	if err != nil {
		return nil, fmt.Errorf("failed opening session store: %w", err)
	}
	sealer, err := credentials.NewService(cfg.EncryptionKey, cfg.KeyFile(credentials.KeyFileName))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed initializing session encryption: %w", err)
	}

	app := state.New()
	gateway := auth.NewGateway(st, app, sealer, logger)
	apiClient := client.New(cfg.URL, gateway,
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(logger),
		client.WithProgress(client.NewSpinner(os.Stderr)),
	)
	gateway.SetClient(apiClient)
	gateway.Restore(ctx)

	presenter := notify.NewPresenter(notify.NewTerminalSink(os.Stderr), cfg.NotifyDuration, logger)

	return &session{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		state:     app,
		gateway:   gateway,
		client:    apiClient,
		presenter: presenter,
		pipelines: pipeline.NewHelper(apiClient, app, presenter, logger),
		vault:     vault.New(apiClient, presenter, logger),
	}, nil
}

func (s *session) Close() {
	s.state.ClearIntervals()
	s.store.Close()
}

// fail presents err as a banner and marks it as already reported.
func (s *session) fail(err error) error {
	s.presenter.OnError(err)
	return &reportedError{err}
}

// reportedError wraps errors that were already shown to the user.
type reportedError struct {
	error
}

func (e *reportedError) Unwrap() error { return e.error }

// recordingNavigator remembers where a pipeline action wanted to go. The
// command decides what to do with the location afterwards.
type recordingNavigator struct {
	last *pipeline.Location
}

func (n *recordingNavigator) Navigate(loc pipeline.Location) {
	n.last = &loc
}

func (n *recordingNavigator) wantsParams() bool {
	return n.last != nil && n.last.Path == menu.ParamsPath
}

// parseArgFlags turns repeated key=value flags into a lookup table.
func parseArgFlags(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q: expected key=value", v)
		}
		out[key] = value
	}
	return out, nil
}

// fillArgs applies known values and returns the keys still missing.
func fillArgs(args []api.Argument, values map[string]string) []int {
	var missing []int
	for i := range args {
		if v, ok := values[args[i].Key]; ok {
			args[i].Value = v
			continue
		}
		missing = append(missing, i)
	}
	return missing
}

// PrintJSON prints data as JSON
func PrintJSON(out io.Writer, data interface{}) {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(out, "Error encoding JSON: %v\n", err)
	}
}
