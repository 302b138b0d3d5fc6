package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/turtacn/lspbridge/internal/config"
	"github.com/turtacn/lspbridge/internal/connection"
	"github.com/turtacn/lspbridge/internal/control"
	"github.com/turtacn/lspbridge/internal/godot"
	"github.com/turtacn/lspbridge/internal/headless"
	"github.com/turtacn/lspbridge/internal/lspclient"
	"github.com/turtacn/lspbridge/internal/monitor"
	"github.com/turtacn/lspbridge/internal/process"
	"github.com/turtacn/lspbridge/internal/statusfeed"
	"github.com/turtacn/lspbridge/pkg/logger"
	"github.com/turtacn/lspbridge/pkg/protocol"
)

// Flag names, bound to config keys through viper.
const (
	FlagConfig    = "config"
	FlagLogLevel  = "log-level"
	FlagSocket    = "socket"
	FlagHeadless  = "headless"
	FlagWorkspace = "workspace"
	FlagForce     = "force"
	FlagProject   = "project-version"
)

var flagKeys = map[string]string{
	FlagConfig:    "config",
	FlagLogLevel:  "observability.log_level",
	FlagSocket:    "control.socket_path",
	FlagHeadless:  "lsp.headless",
	FlagWorkspace: "workspace.root",
}

var rootCmd = &cobra.Command{
	Use:           "lspbridge",
	Short:         "lspbridge: GDScript language server connection manager",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the GDScript language server and keep the connection alive",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := config.NewStore(viper.GetViper())
		if err != nil {
			return err
		}
		closeLog := setupLogging(store.Config().Observability)
		defer closeLog.Close()

		return runBridge(cmd.Context(), store)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch the headless language server in the running bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}
		if err := c.StartLanguageServer(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Headless language server started")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Kill the headless language server launched by the running bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}
		if err := c.StopLanguageServer(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Headless language server stopped")
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the connection; retries immediately when disconnected",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}
		return c.CheckStatus()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connection status of the running bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}
		view, err := c.Status()
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), view)
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe <godot-executable>",
	Short: "Report the version of a Godot executable and whether it can serve headless LSP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l := headless.New(nil, nil, nil)
		v, err := l.Probe(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s is not a valid Godot executable: %w", args[0], err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Version: %s\n", v.Raw)
		fmt.Fprintf(out, "Major:   %d\nMinor:   %d\nBuild:   %s\n", v.Major, v.Minor, v.Hash)

		projectVersion, _ := cmd.Flags().GetString(FlagProject)
		line := godot.RequirementFor(projectVersion)
		if line.Supports(v) {
			fmt.Fprintf(out, "Headless LSP: supported for %d.x projects\n", line.Major)
		} else {
			fmt.Fprintf(out, "Headless LSP: not supported for %d.x projects (requires %s or newer)\n", line.Major, line.Target)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.WritablePath(viper.GetViper())
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool(FlagForce)
		if err := config.WriteDefaults(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP(FlagConfig, "c", "", "Config file path (default: .lspbridge/config.yaml)")
	pf.String(FlagLogLevel, "", "Log level: debug, info, warn, error")
	pf.String(FlagSocket, "", "Control socket path")

	runCmd.Flags().Bool(FlagHeadless, false, "Launch and supervise a headless Godot language server")
	runCmd.Flags().String(FlagWorkspace, "", "Workspace root searched for project.godot")
	probeCmd.Flags().String(FlagProject, "4.x", "Project engine version to check headless support against")
	configInitCmd.Flags().Bool(FlagForce, false, "Overwrite an existing file")

	bind := func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			_ = viper.BindPFlag(key, f)
		}
	}
	pf.VisitAll(bind)
	runCmd.Flags().VisitAll(bind)

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(runCmd, startCmd, stopCmd, checkCmd, statusCmd, probeCmd, configCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runBridge wires the bridge together and blocks until ctx is done.
func runBridge(ctx context.Context, store *config.Store) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := store.Config()
	monitor.InitMetrics(cfg.Observability.MetricsAddr)

	reg := process.Default()
	uninstall := reg.InstallShutdownHooks()
	defer uninstall()
	defer reg.Close()

	resolver := godot.NewResolver(store.WorkspaceRoot())
	launcher := headless.New(reg, resolver, store, headless.WithHost(store.ServerHost()))
	client := lspclient.New(store.ServerHost(), store.ServerPort())
	defer client.Close()
	client.OnMessage(logServerMessage)
	hub := statusfeed.NewHub()
	hub.SetAllowedOrigins(cfg.StatusFeed.AllowedOrigins)
	mgr := connection.New(client, launcher, store, hub)
	hub.SetCommands(mgr)

	logger.Log.Info("Booting lspbridge", "workspace", cfg.Workspace.Root, "headless", cfg.LSP.Headless, "config", store.Path())

	ctl := control.NewServer(socketPath(cfg), mgr)
	go func() {
		if err := ctl.Start(ctx); err != nil {
			logger.Log.Error("control socket failed", "err", err)
		}
	}()

	if cfg.StatusFeed.Enabled {
		go func() {
			if err := hub.Serve(ctx, cfg.StatusFeed.Addr); err != nil {
				logger.Log.Error("status feed failed", "err", err)
			}
		}()
	}

	go func() {
		err := store.Watch(ctx, func(c protocol.Config) {
			client.SetEmbedded(c.LSP.ServerHost, c.LSP.ServerPort)
		})
		if err != nil {
			logger.Log.Warn("config watcher disabled", "err", err)
		}
	}()

	return mgr.Run(ctx)
}

func controlClient() (*control.Client, error) {
	cfg, err := config.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return control.NewClient(socketPath(*cfg)), nil
}

func socketPath(cfg protocol.Config) string {
	path := cfg.Control.SocketPath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

func setupLogging(o protocol.ObservabilityConfig) io.Closer {
	if o.LogFile == "" {
		logger.InitLogger(o.LogLevel)
		return nopCloser{}
	}
	return logger.InitFileLogger(o.LogLevel, logger.FileOptions{
		Path:       o.LogFile,
		MaxSizeMB:  o.LogRotation.MaxSizeMB,
		MaxBackups: o.LogRotation.MaxBackups,
		MaxAgeDays: o.LogRotation.MaxAgeDays,
		Compress:   o.LogRotation.Compress,
	})
}

// logServerMessage surfaces window/logMessage and window/showMessage
// notifications from the language server.
func logServerMessage(raw json.RawMessage) {
	var msg struct {
		Method string `json:"method"`
		Params struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	switch msg.Method {
	case "window/logMessage", "window/showMessage":
		logger.Log.Debug("lsp server message", "type", msg.Params.Type, "message", msg.Params.Message)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func printStatus(w io.Writer, v *connection.StatusView) {
	fmt.Fprintf(w, "State:    %s\n", v.State)
	fmt.Fprintf(w, "Status:   %s\n", v.Text)
	fmt.Fprintf(w, "Target:   %s\n", v.Target)
	fmt.Fprintf(w, "Endpoint: %s\n", v.Endpoint)
	fmt.Fprintf(w, "Attempts: %d/%d (%s)\n", v.Attempts, v.MaxAttempts, v.Phase)
	fmt.Fprintf(w, "Headless: %d process(es)\n", v.Processes)
	if v.Version != "" {
		fmt.Fprintf(w, "Version:  %s\n", v.Version)
	}
}

// Personal.AI order the ending
