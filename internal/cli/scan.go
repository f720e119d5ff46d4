package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/harun/bounter/internal/config"
	"github.com/harun/bounter/internal/logger"
	"github.com/harun/bounter/internal/observability"
	"github.com/harun/bounter/internal/tracing"
	"github.com/harun/bounter/pkg/agent"
	"github.com/harun/bounter/pkg/sandbox"
	"github.com/harun/bounter/pkg/session"
	"github.com/harun/bounter/pkg/tools"
	"github.com/harun/bounter/pkg/toolexecutor"
)

var scanDescription string

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Run a security test against a target",
	Long: `Run a model-driven security test against an authorized target.
Models are tried in the configured fallback order; a snapshot of the scan
is written to the report directory whether or not it succeeds.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanDescription, "description", "d", "", "extra context about the target")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	target := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(loggerConfig(cfg))
	if err != nil {
		return err
	}
	defer lg.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tracing.InitOpenTelemetry("bounter", version); err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	}
	defer func() { _ = tracing.ShutdownOpenTelemetry(context.Background()) }()

	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
		log.Warn().Err(err).Msg("Audit log disabled")
	}
	defer func() { _ = observability.GetAuditLogger().Close() }()

	if cfg.Metrics.Enabled {
		srv := startMetricsServer(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	store, err := session.NewStore(cfg.Report.Dir, cfg.Report.Prefix)
	if err != nil {
		return err
	}

	shell, err := sandbox.New(sandboxConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create sandbox: %w", err)
	}
	suite, err := tools.NewSuite(toolOptions(cfg), shell)
	if err != nil {
		return err
	}
	if err := suite.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := suite.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to release tool state")
		}
	}()

	sc := session.New(target, scanDescription)
	key := store.NewKey(sc.StartTime())
	out := newConsole(cmd.OutOrStdout())

	runner, err := agent.NewRunner(agent.Config{
		Models:            cfg.Models(),
		Providers:         agent.NewProviderFactory(cfg.Providers),
		Tools:             toolFactory(cfg, suite, out, journal(store, key)),
		Session:           sc,
		SystemInstruction: cfg.SystemInstruction,
		Temperature:       cfg.Temperature,
		ThinkingModels:    thinkingModels(cfg),
		ThinkingBudget:    cfg.ThinkingBudget,
		IncludeThoughts:   cfg.IncludeThoughts,
		MaxToolTurns:      cfg.MaxToolTurns,
		IncompleteRetries: cfg.IncompleteRetries,
		Budget:            modelBudget(cfg),
		Sink:              out,
		Logger:            lg.Component("agent"),
	})
	if err != nil {
		return err
	}

	result, runErr := runner.Run(ctx, target, scanDescription)

	path, err := store.SaveSnapshot(context.Background(), key, sc.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("Failed to save scan report")
	}
	out.Summary(sc, result, runErr, path)
	return runErr
}

// toolFactory builds a fresh registry per attempt over the shared suite.
func toolFactory(cfg *config.Config, suite *tools.Suite, out *console, extra toolexecutor.Observer) agent.ToolFactory {
	policy := toolexecutor.NewToolPolicy(cfg.Tools.Allow, cfg.Tools.Deny)
	return func(_ context.Context, _ agent.ModelAttempt) (*toolexecutor.ToolExecutor, error) {
		te := toolexecutor.New()
		te.SetPolicy(policy)
		te.SetObserver(toolexecutor.Observers(out.OnToolEvent, extra))
		if err := suite.Register(te); err != nil {
			return nil, err
		}
		return te, nil
	}
}

// journal appends finished commands to the report journal so an interrupted
// scan still leaves a trail.
func journal(store *session.Store, key string) toolexecutor.Observer {
	return func(ev toolexecutor.ToolEvent) {
		if ev.Phase != toolexecutor.PhaseEnd {
			return
		}
		err := store.AppendCommand(context.Background(), key, session.CommandRecord{
			ToolName:   ev.ToolName,
			Command:    ev.Command,
			Success:    ev.Success,
			ReturnCode: ev.ReturnCode,
			Stdout:     ev.Stdout,
			Stderr:     ev.Stderr,
			Timestamp:  ev.Timestamp,
		})
		if err != nil {
			log.Warn().Err(err).Str("event_id", ev.EventID).Msg("Failed to journal command")
		}
	}
}

func thinkingModels(cfg *config.Config) []string {
	var out []string
	for _, m := range cfg.Models() {
		if cfg.SupportsThinking(m) {
			out = append(out, m)
		}
	}
	return out
}

func modelBudget(cfg *config.Config) *agent.ModelBudget {
	if !cfg.RateLimits.Enabled {
		return nil
	}
	return agent.NewModelBudget(cfg.RateLimits.RPM, cfg.RateLimits.Buffer, cfg.RateWindow())
}

func loggerConfig(cfg *config.Config) logger.Config {
	file := cfg.Logging.File
	if file == "" {
		file = filepath.Join(cfg.DataDir, "logs", "bounter.log")
	}
	return logger.Config{
		Level:     cfg.Logging.Level,
		File:      file,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	}
}

func sandboxConfig(cfg *config.Config) sandbox.Config {
	sc := sandbox.DefaultConfig()
	if cfg.Sandbox.Runtime != "" {
		sc.Runtime = sandbox.Runtime(cfg.Sandbox.Runtime)
	}
	if cfg.Sandbox.Image != "" {
		sc.Docker.Image = cfg.Sandbox.Image
	}
	if cfg.Sandbox.Network != "" {
		sc.Docker.Network = cfg.Sandbox.Network
	}
	sc.ResourceLimits.Timeout = cfg.CommandTimeoutDuration()
	return sc
}

func toolOptions(cfg *config.Config) tools.Options {
	return tools.Options{
		CommandTimeout:   cfg.CommandTimeoutDuration(),
		ScriptTimeout:    cfg.ScriptTimeoutDuration(),
		DownloadDir:      cfg.Tools.DownloadDir,
		SearchsploitPath: cfg.Tools.SearchsploitPath,
		NetcatPath:       cfg.Tools.NetcatPath,
		PythonPath:       cfg.Tools.PythonPath,
		ListenerBind:     cfg.Tools.ListenerBind,
	}
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	return srv
}
