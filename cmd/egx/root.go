// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/egx/pkg/logging"
	"github.com/AleutianAI/egx/services/extract/config"
	"github.com/AleutianAI/egx/services/extract/telemetry"
)

// app holds state shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string

	cfg      *config.Config
	logger   *logging.Logger
	shutdown func(context.Context) error
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close(ctx)
	if err != nil {
		if exitErr, ok := err.(*ExitError); !ok || exitErr.Err != nil {
			fmt.Fprintf(stderr, "egx: %v\n", err)
		}
	}
	return exitCodeOf(err)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "egx",
		Short: "Extract low-cost terms from e-graphs",
		Long: `egx picks one node per e-class so the selected sub-graph reachable
from the roots is acyclic and cheap. Extractors range from fixed-point
propagation to an exact solver and an oracle-scored annealing search.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (YAML or JSON)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: auto, text, json")

	root.AddCommand(
		a.extractCmd(),
		a.sampleCmd(),
		a.eqnCmd(),
		a.validateCmd(),
		a.serveCmd(),
		a.versionCmd(),
	)
	return root
}

// setup loads configuration and installs the process logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	lc := cfg.LoggerConfig("egx")
	lc.Output = a.stderr
	a.logger = logging.New(lc)
	slog.SetDefault(a.logger.Slog())

	// Only serve exposes /metrics; other commands export traces when asked.
	tc := cfg.Telemetry
	tc.ServiceVersion = Version
	if cmd.Name() != "serve" {
		tc.MetricExporter = telemetry.ExporterNone
	}
	if tc.TraceExporter == telemetry.ExporterNone && tc.MetricExporter == telemetry.ExporterNone {
		return nil
	}
	shutdown, err := telemetry.Init(cmd.Context(), tc)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.shutdown != nil {
		if err := a.shutdown(context.WithoutCancel(ctx)); err != nil {
			a.log().Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}

// exactArgs is cobra.ExactArgs with a usage exit code.
func exactArgs(n int, names string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError("expected %s, got %d argument(s)", names, len(args))
		}
		return nil
	}
}
