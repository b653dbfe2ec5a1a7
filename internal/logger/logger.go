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

// Package logger wraps the galog configuration/initialization.
package logger

import (
	"context"
	"fmt"
	"os"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/opsward/userprov/internal/utils/file"
)

// Options contains the loggers configuration/options.
type Options struct {
	// LogFile is the path of the audit log file.
	LogFile string
	// LogToStderr flags if stderr loggers must be enabled.
	LogToStderr bool
	// Level is the log level.
	Level int
	// Verbosity is the log verbosity level.
	Verbosity int
}

// logFilePerm keeps the audit log readable by its owner only, the log may
// reference usernames being provisioned.
const logFilePerm = 0600

// auditLogFormat pins audit log lines to "<timestamp> [<LEVEL>] <message>",
// for error and non-error entries alike.
const auditLogFormat = `{{.When.Format "2006-01-02T15:04:05Z07:00"}} [{{.Level}}] {{.Message}}`

// Init initializes the logger.
func Init(ctx context.Context, opts Options) error {
	var enabledLoggers []galog.Backend

	galog.SetMinVerbosity(opts.Verbosity)

	if opts.LogFile != "" {
		// The log file is created ahead of backend registration so its
		// permissions are restricted before the first entry is written.
		if err := file.Touch(opts.LogFile, logFilePerm); err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		fileBackend := galog.NewFileBackend(opts.LogFile)
		fileBackend.Config().SetFormat(galog.ErrorLevel, auditLogFormat)
		fileBackend.Config().SetFormat(galog.InfoLevel, auditLogFormat)
		enabledLoggers = append(enabledLoggers, fileBackend)
	}

	if opts.LogToStderr {
		enabledLoggers = append(enabledLoggers, galog.NewStderrBackend(os.Stderr))
	}

	for _, logger := range enabledLoggers {
		galog.RegisterBackend(ctx, logger)
	}

	level, err := galog.ParseLevel(opts.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	galog.SetLevel(level)

	return nil
}
