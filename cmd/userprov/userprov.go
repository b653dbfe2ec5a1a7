//  Copyright 2025 The userprov Authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package main is the implementation of the bulk user provisioning CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/opsward/userprov/internal/cfg"
	"github.com/opsward/userprov/internal/logger"
	"github.com/opsward/userprov/internal/provision"
	"github.com/opsward/userprov/internal/roster"
	"github.com/opsward/userprov/internal/utils/file"
	"github.com/spf13/cobra"
)

const (
	// galogShutdownTimeout is the period of time we should wait for galog to
	// shutdown.
	galogShutdownTimeout = time.Second
)

// version is the version of the binary, it's meant to be overridden at build
// time with -ldflags "-X main.version=...".
var version = "unknown"

// options holds the command line flag values of the root command.
type options struct {
	configFile   string
	summaryFile  string
	logFile      string
	logLevel     int
	logVerbosity int
}

// Privilege and uid lookups are bound through variables so tests can run the
// command without being root.
var (
	euid = os.Geteuid
)

// newRootCommand generates the root command with its flag set. The roster
// file is the single positional argument.
func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "userprov <roster-file>",
		Short:         "Bulk Linux user account provisioning.",
		Long:          "Reads a roster of usernames and group lists, creates the accounts and groups, and records the generated credentials.",
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd, opts, args[0])
		},
	}

	root.Flags().StringVar(&opts.configFile, "config", "", "extra config file layered over the built-in defaults")
	root.Flags().StringVar(&opts.summaryFile, "summary-file", "", "write a YAML run summary to this path")
	root.Flags().StringVar(&opts.logFile, "log-file", "", "path to the audit log file")
	root.Flags().IntVar(&opts.logLevel, "log-level", 0, "log level: "+galog.ValidLevels())
	root.Flags().IntVar(&opts.logVerbosity, "log-verbosity", 0, "log verbosity")

	return root
}

// runProvision is the root command's implementation. Errors it returns are
// startup/precondition failures; per-record failures are handled inside the
// provisioning run and never fail the command.
func runProvision(cmd *cobra.Command, opts *options, rosterPath string) error {
	ctx := cmd.Context()

	if euid() != 0 {
		return fmt.Errorf("this tool must be run as root")
	}

	if !file.Exists(rosterPath, file.TypeFile) {
		return fmt.Errorf("roster file %q does not exist", rosterPath)
	}

	var extraDefaults []byte
	if opts.configFile != "" {
		data, err := os.ReadFile(opts.configFile)
		if err != nil {
			return fmt.Errorf("failed to read config file %q: %w", opts.configFile, err)
		}
		extraDefaults = data
	}

	if err := cfg.Load(extraDefaults); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config := cfg.Retrieve()
	config.Core.Version = version

	logOpts := logger.Options{
		LogFile:     config.Core.LogFile,
		LogToStderr: true,
		Level:       config.Core.LogLevel,
		Verbosity:   config.Core.LogVerbosity,
	}
	// CLI flags take precedence over the configuration file.
	if cmd.Flags().Changed("log-file") {
		logOpts.LogFile = opts.logFile
	}
	if cmd.Flags().Changed("log-level") {
		logOpts.Level = opts.logLevel
	}
	if cmd.Flags().Changed("log-verbosity") {
		logOpts.Verbosity = opts.logVerbosity
	}
	if err := logger.Init(ctx, logOpts); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	galog.Infof("Starting user provisioning (version %s), roster: %s.", version, rosterPath)

	records, issues, err := roster.ParseFile(rosterPath)
	if err != nil {
		return err
	}

	summary := provision.Run(ctx, records, issues)

	if opts.summaryFile != "" {
		if err := summary.WriteFile(ctx, opts.summaryFile); err != nil {
			galog.Errorf("Failed to write run summary: %v.", err)
		}
	}

	return nil
}

func main() {
	ctx := context.Background()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "userprov: %v\n", err)
		galog.Shutdown(galogShutdownTimeout)
		os.Exit(2)
	}

	galog.Shutdown(galogShutdownTimeout)
}
