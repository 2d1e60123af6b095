package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/esginsight/pkg/backend"
	"github.com/greg-hellings/esginsight/pkg/config"
	"github.com/greg-hellings/esginsight/pkg/export"
	"github.com/greg-hellings/esginsight/pkg/observability"
	consolefmt "github.com/greg-hellings/esginsight/pkg/report/format"
	"github.com/greg-hellings/esginsight/pkg/services"
	"github.com/greg-hellings/esginsight/pkg/state"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag variables
var (
	flagVerbose    bool
	flagDebug      bool
	flagConfig     string
	flagBackendURL string
	flagNoColor    bool
)

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		// If Execute() returns an error, logging may or may not be initialized yet.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every subcommand needs once the root pre-run has loaded
// configuration.
type app struct {
	cfg       *config.Config
	client    backend.Client
	session   *services.Session
	formatter *consolefmt.ConsoleFormatter
	shutdown  func(context.Context) error
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "esginsight",
		Short: "ESG report analysis client",
		Long: strings.TrimSpace(`
esginsight - ESG report analysis client

Upload sustainability reports to the analysis service, then ask questions
about a selected report, generate an executive summary (exportable as PDF),
check framework compliance, assess greenwashing risk and extract metrics.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close(cmd.Context())
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (info) logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a YAML or TOML config file")
	cmd.PersistentFlags().StringVar(&flagBackendURL, "backend", "", "Analysis service base URL (overrides config)")
	cmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable ANSI colors")
	cmd.Version = version

	// Add subcommands
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newReportsCmd(a))
	cmd.AddCommand(newChatCmd(a))
	cmd.AddCommand(newSummaryCmd(a))
	cmd.AddCommand(newComplianceCmd(a))
	cmd.AddCommand(newRiskCmd(a))
	cmd.AddCommand(newMetricsCmd(a))
	cmd.AddCommand(newAnalyzeCmd(a))
	cmd.AddCommand(newShellCmd(a))

	return cmd
}

// newVersionCmd prints version info (simple helper).
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "esginsight version: %s\n", version)
		},
	}
}

// init loads configuration, sets up logging and telemetry, and builds the
// backend client and session.
func (a *app) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if flagBackendURL != "" {
		cfg.Backend.BaseURL = flagBackendURL
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --backend: %w", err)
		}
	}
	if flagNoColor {
		cfg.Display.NoColor = true
	}
	a.cfg = cfg

	initLogging(cfg)

	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Tracing.ServiceName, version)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		a.shutdown = shutdown
	}

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	client, err := backend.NewHTTPClient(cfg.ClientConfig())
	if err != nil {
		return err
	}
	a.client = client

	exportOpts := export.DefaultOptions()
	exportOpts.WrapWidth = cfg.Export.WrapWidth
	exportOpts.FontFile = cfg.Export.FontFile
	a.session = services.NewSession(client, services.SessionOptions{
		TopK:     cfg.Chat.TopK,
		Exporter: export.New(exportOpts),
		Metrics:  metrics,
	})

	a.formatter = consolefmt.NewConsoleFormatter()
	a.formatter.EnableColors = !cfg.Display.NoColor

	slog.Debug("Client initialized", "backend", cfg.Backend.BaseURL, "topK", cfg.Chat.TopK)
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := a.shutdown(ctx)
	a.shutdown = nil
	if err != nil {
		return fmt.Errorf("failed to flush telemetry: %w", err)
	}
	return nil
}

func initLogging(cfg *config.Config) {
	level := cfg.Log.Level
	switch {
	case flagDebug:
		level = "debug"
	case flagVerbose:
		level = "info"
	}
	observability.InitLogger(observability.LogOptions{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	slog.Debug("Logging initialized", "level", observability.ParseLevel(level).String())
}

// selectReport refreshes the report list and selects ref, which is either a
// report id or a 1-based position in the list.
func (a *app) selectReport(ctx context.Context, ref string) error {
	if err := a.session.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load reports: %s", backend.ErrorMessage(err))
	}
	rep, err := resolveReport(a.session.Reports(), ref)
	if err != nil {
		return err
	}
	a.session.Select(rep.ID)
	slog.Info("Selected report", "id", rep.ID, "name", rep.Name)
	return nil
}

// resolveReport finds ref by id first, then by 1-based index.
func resolveReport(reports []backend.Report, ref string) (backend.Report, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return backend.Report{}, errors.New("no report given: pass --report <id|number> (see 'esginsight reports')")
	}
	for _, r := range reports {
		if r.ID == ref {
			return r, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(reports) {
		return reports[n-1], nil
	}
	return backend.Report{}, fmt.Errorf("report %q not found", ref)
}

// loadPrefs reads the shell preferences; failures fall back to empty ones.
func (a *app) loadPrefs() *state.Preferences {
	p, err := state.LoadPreferences(a.cfg.State.File)
	if err != nil {
		slog.Warn("Ignoring unreadable preferences", "error", err)
		return state.NewPreferences()
	}
	return p
}

func (a *app) savePrefs(p *state.Preferences) {
	if err := state.SavePreferences(p, a.cfg.State.File); err != nil {
		slog.Warn("Failed to save preferences", "error", err)
	}
}

// actionError turns a failed action into the error shown to the user.
func actionError(action string, err error) error {
	switch {
	case errors.Is(err, services.ErrNoSelection),
		errors.Is(err, services.ErrEmptyQuestion),
		errors.Is(err, services.ErrBusy),
		errors.Is(err, services.ErrStaleResponse):
		return fmt.Errorf("%s: %w", action, err)
	default:
		return fmt.Errorf("%s failed: %s", action, backend.ErrorMessage(err))
	}
}
