package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hylla/slate/internal/adapters/storage/sqlite"
	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/config"
	"github.com/hylla/slate/internal/platform"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes it with fang styling.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(&cliState{stdout: stdout, stderr: stderr})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// cliState carries persistent flag values and the resolved runtime between commands.
type cliState struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	dbPath     string
	appName    string
	devMode    bool

	paths        platform.Paths
	dbOverridden bool
}

func newRootCommand(state *cliState) *cobra.Command {
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("SLATE_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv("SLATE_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:   "slate",
		Short: "Board service with sparse ordering and a generated query schema",
		Long: `slate keeps boards, lists and cards in sqlite, orders them with sparse
fractional positions, and publishes a query-protocol schema compiled from
entity metadata. Run "slate serve" for the HTTP, MCP and live-feed endpoints.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.resolvePaths()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&state.configPath, "config", "", "path to config TOML")
	flags.StringVar(&state.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&state.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&state.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newServeCommand(state),
		newSchemaCommand(state),
		newBoardCommand(state),
		newListCommand(state),
		newCardCommand(state),
		newExportCommand(state),
		newImportCommand(state),
		newPathsCommand(state),
	)
	return root
}

// resolvePaths applies env overrides and platform defaults to config and db paths.
func (s *cliState) resolvePaths() error {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: s.appName,
		DevMode: s.devMode,
	})
	if err != nil {
		return err
	}
	s.paths = paths

	s.dbOverridden = strings.TrimSpace(s.dbPath) != ""
	if strings.TrimSpace(s.configPath) == "" {
		if envPath := strings.TrimSpace(os.Getenv("SLATE_CONFIG")); envPath != "" {
			s.configPath = envPath
		} else {
			s.configPath = paths.ConfigPath
		}
	}
	if !s.dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("SLATE_DB_PATH")); envPath != "" {
			s.dbPath = envPath
			s.dbOverridden = true
		} else {
			s.dbPath = paths.DBPath
		}
	}
	return nil
}

// loadConfig reads the TOML config and fills unset paths from platform defaults.
func (s *cliState) loadConfig() (config.Config, error) {
	cfg, err := config.Load(s.configPath, config.Default(s.dbPath))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %q: %w", s.configPath, err)
	}
	if s.dbOverridden {
		cfg.Database.Path = s.dbPath
	}
	if strings.TrimSpace(cfg.Schema.MetadataPath) == "" {
		cfg.Schema.MetadataPath = s.paths.MetadataPath
	}
	if strings.TrimSpace(cfg.Schema.OutputPath) == "" {
		cfg.Schema.OutputPath = s.paths.SchemaPath
	}
	return cfg, nil
}

// runtime bundles the opened resources one command works against.
type runtime struct {
	cfg      config.Config
	logger   *runtimeLogger
	repo     *sqlite.Repository
	service  *app.Service
	registry *app.SchemaRegistry
}

// openRuntime loads config, then opens logging and the repository.
func (s *cliState) openRuntime(command string) (*runtime, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newRuntimeLogger(s.stderr, s.appName, s.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}

	logger.Info("startup configuration resolved", "app", s.appName, "dev_mode", s.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", s.configPath, "data_dir", s.paths.DataDir, "db_path", s.dbPath)
	logger.Info("configuration loaded", "config_path", s.configPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")

	rt := &runtime{cfg: cfg, logger: logger, repo: repo}
	rt.buildService(nil)
	rt.registry = app.NewSchemaRegistry(logger.Component("schema"), nil)
	return rt, nil
}

// buildService (re)creates the application service publishing to events.
func (r *runtime) buildService(events app.EventSink) {
	templates := make([]app.ListTemplate, 0, len(r.cfg.Board.Lists))
	for _, list := range r.cfg.Board.Lists {
		templates = append(templates, app.ListTemplate{Name: list.Name, WIPLimit: list.WIPLimit})
	}
	r.service = app.NewService(r.repo, uuid.NewString, nil, app.ServiceConfig{
		DefaultDeleteMode:    app.DeleteMode(r.cfg.Delete.DefaultMode),
		ListTemplates:        templates,
		AutoCreateBoardLists: true,
		MinGap:               r.cfg.Ordering.MinGap,
		MaxMoveRetries:       moveRetries(r.cfg.Ordering.MaxMoveRetries),
		Events:               events,
	})
	r.logger.Debug("application service initialized", "default_delete_mode", r.cfg.Delete.DefaultMode, "min_gap", r.cfg.Ordering.MinGap)
}

// moveRetries maps a configured zero to "no retries"; the service treats zero as its default.
func moveRetries(configured int) int {
	if configured == 0 {
		return -1
	}
	return configured
}

// Close releases the repository and the log file.
func (r *runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if err := r.repo.Close(); err != nil {
		r.logger.Warn("sqlite close failed", "db_path", r.cfg.Database.Path, "err", err)
		errs = append(errs, err)
	}
	if err := r.logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close runtime log sink: %w", err))
	}
	return errors.Join(errs...)
}

// loadSchema compiles the live document from built-ins plus the metadata overlay.
func (r *runtime) loadSchema(ctx context.Context) (app.SchemaUpdated, error) {
	decls, err := app.LoadDeclarations(r.cfg.Schema.MetadataPath)
	if err != nil {
		return app.SchemaUpdated{}, err
	}
	update, err := r.registry.Load(ctx, decls)
	if err != nil {
		// Sink failures leave the new document live.
		r.logger.Warn("schema sinks reported errors", "err", err)
	}
	r.logger.Info("schema compiled", "hash", update.Hash, "metadata_path", r.cfg.Schema.MetadataPath)
	return update, nil
}

// withCommandLog wraps one command flow with start/complete/failed events.
func withCommandLog(logger *runtimeLogger, command string, fn func() error) error {
	logger.Info("command flow start", "command", command)
	if err := fn(); err != nil {
		logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	logger.Info("command flow complete", "command", command)
	return nil
}

// parseBoolEnv parses a boolean environment variable and reports whether it was set.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}
