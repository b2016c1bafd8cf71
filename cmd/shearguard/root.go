// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/shearguard/internal/config"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/orchestrator"
)

// Exit codes.
const (
	exitOK       = 0
	exitFatal    = 1
	exitRejected = 2
	exitNoData   = 3
)

// exitError carries a specific exit code. A nil err means the command
// already reported its outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error onto the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, orchestrator.ErrNoData) {
		return exitNoData
	}
	return exitFatal
}

// cli holds flag values and the loaded configuration for one invocation.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	dataDir    string
	threshold  float64

	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "shearguard",
		Short:         "Beam shear strength model lifecycle manager",
		Long:          `Retrain, validate, version and serve the beam shear strength prediction model.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (default: CONFIG_PATH or ./config.yaml)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: json or console")
	flags.StringVar(&c.dataDir, "data-dir", "", "data directory holding the registry and artifacts")
	flags.Float64Var(&c.threshold, "threshold", 0, "minimum R2 or OOB improvement required to promote")

	root.AddCommand(
		newInitCmd(c),
		newRetrainCmd(c),
		newRollbackCmd(c),
		newVersionsCmd(c),
		newInfoCmd(c),
		newResetCmd(c),
		newPredictCmd(c),
		newAddSamplesCmd(c),
		newAttemptsCmd(c),
		newSubmissionsCmd(c),
		newServeCmd(c),
		newHashPasswordCmd(c),
	)
	return root
}

// load reads the configuration with flag overrides applied on top.
func (c *cli) load(cmd *cobra.Command) error {
	overrides := map[string]interface{}{}
	if c.dataDir != "" {
		overrides["storage.data_dir"] = c.dataDir
	}
	if cmd.Flags().Changed("threshold") {
		overrides["training.threshold"] = c.threshold
	}
	if c.logLevel != "" {
		overrides["logging.level"] = c.logLevel
	}
	if c.logFormat != "" {
		overrides["logging.format"] = c.logFormat
	}

	cfg, err := config.LoadWithOverrides(c.configPath, overrides)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging.LoggingOptions()
	logCfg.Output = c.stderr
	logging.Init(logCfg)

	c.cfg = cfg
	return nil
}

// printJSON writes v as indented JSON to stdout.
func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// run executes the CLI and returns the process exit code.
func run(args []string) int {
	return runWith(args, os.Stdout, os.Stderr)
}

func runWith(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := newRootCmd(c)
	root.SetArgs(args)

	err := root.Execute()
	code := exitCode(err)
	if code == exitFatal {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if kind := orchestrator.Kind(err); kind != orchestrator.KindUnknown {
			_, _ = fmt.Fprintf(stderr, "Error kind: %s\n", kind)
		}
	}
	return code
}
