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

// Package credstore appends generated credentials to the restricted
// credential file.
package credstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/GoogleCloudPlatform/galog"
)

const (
	// filePerm keeps credential lines readable by the owner only.
	filePerm = 0600
	// dirPerm restricts the credential directory to the owner.
	dirPerm = 0700
)

// Store appends username:secret lines to a single credential file.
type Store struct {
	path string
}

// New returns a store writing to the given path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the credential file path.
func (s *Store) Path() string {
	return s.path
}

// Append records the credential for username. The file and its directory are
// created restricted if absent, and the file mode is re-asserted after every
// append in case an external process loosened it between runs.
func (s *Store) Append(username, secret string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open credential file %q: %w", s.path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s:%s\n", username, secret); err != nil {
		return fmt.Errorf("failed to append credential for %s: %w", username, err)
	}

	if err := f.Chmod(filePerm); err != nil {
		return fmt.Errorf("failed to restrict credential file %q: %w", s.path, err)
	}

	galog.V(2).Debugf("Recorded credential for user %s in %s", username, s.path)
	return nil
}
