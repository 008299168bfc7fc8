// Command processguardd is the ProcessGuard daemon entry point: it loads a
// configuration file, registers every descriptor with the supervisor,
// starts the sampler and alert bus, and serves the REST/WebSocket control
// plane, grounded on the teacher's own Execute/Run CLI shape but rebuilt
// over cobra, the corpus's CLI library of choice.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/spf13/cobra"

	"github.com/oarkflow/processguard/internal/alert"
	"github.com/oarkflow/processguard/internal/api"
	"github.com/oarkflow/processguard/internal/config"
	"github.com/oarkflow/processguard/internal/facade"
	"github.com/oarkflow/processguard/internal/logs"
	"github.com/oarkflow/processguard/internal/sampler"
	"github.com/oarkflow/processguard/internal/supervisor"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "processguardd",
	Short: "ProcessGuard supervises long-running processes on a host",
}

var configPath string
var listenAddr string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the supervisor daemon",
	RunE:  runStart,
}

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate a configuration file and exit",
	RunE:  runValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("processguardd %s (commit %s)\n", version, commit)
	},
}

func init() {
	startCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	startCmd.Flags().StringVar(&listenAddr, "listen", ":8088", "address for the control-plane HTTP server")
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")

	rootCmd.AddCommand(startCmd, validateCmd, versionCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(configPath); err != nil {
		return err
	}
	fmt.Println("configuration is valid")
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.LoadEnvFiles(cfg.EnvFiles)
	setupLogging(cfg.LogLevel, filepath.Join(cfg.LogDir, "processguardd.log"))

	lm, err := logs.New(logs.Options{Dir: cfg.LogDir, RotateBytes: cfg.LogRotateBytes, RotateKeep: cfg.LogRotateKeep})
	if err != nil {
		return fmt.Errorf("initializing log manager: %w", err)
	}

	bus := alert.New(alert.Options{CooldownSeconds: cfg.Notifications.CooldownSeconds}, buildSinks(cfg.Notifications)...)
	f := facade.New()
	mgr := supervisor.New(f, lm, bus)
	for _, desc := range cfg.Processes {
		mgr.Register(desc)
	}

	interval := time.Duration(cfg.MonitorInterval * float64(time.Second))
	samp := sampler.New(interval, f, mgr, bus)
	go samp.Run()

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		slog.Info("configuration reloaded", slog.String("path", configPath))
		for _, desc := range newCfg.Processes {
			mgr.Register(desc)
		}
	}, func(err error) {
		slog.Warn("configuration watch error", slog.String("err", err.Error()))
	})
	if err != nil {
		slog.Warn("failed to start configuration watcher; hot-reload disabled", slog.String("err", err.Error()))
	} else {
		defer watcher.Close()
	}

	if cfg.AutoStartProcesses {
		mgr.StartAll()
	}

	srv := api.New(mgr, bus, samp, f, interval)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Listen(listenAddr)
	}()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigC:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			slog.Error("control-plane server exited", slog.String("err", err.Error()))
		}
	}

	_ = srv.Shutdown()
	mgr.StopAll()
	samp.Stop()
	bus.Close()
	return nil
}

func buildSinks(n config.NotificationsConfig) []alert.Sink {
	var sinks []alert.Sink
	if n.EmailEnabled {
		sinks = append(sinks, alert.NewSMTPSink(alert.SMTPConfig{
			Server: n.EmailSMTPServer,
			Port: n.EmailSMTPPort,
			Username: n.EmailSMTPUsername,
			Password: n.EmailSMTPPassword,
			UseTLS: n.EmailSMTPUseTLS,
			Recipients: n.EmailRecipients,
		}))
	}
	if n.WebhookEnabled {
		sinks = append(sinks, alert.NewWebhookSink(alert.WebhookConfig{URL: n.WebhookURL, Headers: n.WebhookHeaders}))
	}
	if n.SlackEnabled {
		sinks = append(sinks, alert.NewSlackSink(n.SlackWebhookURL))
	}
	return sinks
}

// setupLogging wires slog to stdout and a rotating file, exactly as the
// teacher's setupLogging does, with the level taken from configuration
// instead of being fixed at Info.
func setupLogging(level, logPath string) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "could not create log dir %s: %v\n", dir, err)
		os.Exit(1)
	}
	fileLogger := &lumberjack.Logger{
		Filename: logPath,
		MaxSize: 10,
		MaxBackups: 5,
		MaxAge: 28,
		Compress: true,
	}
	mw := io.MultiWriter(os.Stdout, fileLogger)
	handler := slog.NewTextHandler(mw, &slog.HandlerOptions{Level: parseLevel(level)})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
