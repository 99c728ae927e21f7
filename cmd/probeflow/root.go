package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	runtimepkg "github.com/drblury/probeflow/internal/runtime"
	configpkg "github.com/drblury/probeflow/internal/runtime/config"
	"github.com/drblury/probeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/probeflow/internal/runtime/logging"
)

var (
	configPath string
	logLevel   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "probeflow",
	Short: "Serve and query probes, namespaces and triggers over a message broker",
	Long: `probeflow hosts probes and namespaces on a message broker and queries
them remotely.

  - serve     Serve a probe or a namespace until interrupted
  - probe     Query a remote probe
  - var       Read, write or watch namespace variables
  - emit      Publish an event to a probe routing key
  - trigger   Validate or run cron triggers

The broker and exchange names are read from a flat YAML or JSON file
(probeflow.yaml by default). Missing keys fall back to built-in defaults.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configpkg.DefaultFile, "environment file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(varCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(triggerCmd)
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func newLogger(w io.Writer) (loggingpkg.ServiceLogger, error) {
	level, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return loggingpkg.NewSlogServiceLogger(slog.New(handler)), nil
}

// newService loads the environment file and builds a Service logging to
// stderr.
func newService(cmd *cobra.Command) (*runtimepkg.Service, error) {
	log, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	env := configpkg.LoadEnvironment(configPath, log)
	cfg, err := env.Config()
	if err != nil {
		log.Error("Invalid configuration values, using defaults", err, nil)
	}
	return runtimepkg.NewService(cfg, log, runtimepkg.ServiceDependencies{})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// printResult prints scalars as text unless --json is set, everything else
// as indented JSON.
func printResult(w io.Writer, v any) error {
	switch v.(type) {
	case bool, int, int64, string:
		if !jsonOutput {
			_, err := fmt.Fprintln(w, v)
			return err
		}
	}
	data, err := jsoncodec.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
