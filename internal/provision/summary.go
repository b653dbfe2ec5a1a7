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

package provision

import (
	"context"
	"fmt"

	"github.com/opsward/userprov/internal/utils/file"
	"gopkg.in/yaml.v3"
)

// WriteFile writes the summary as YAML to the given path. The file is
// restricted to the owner, outcome details may reference usernames. The
// write goes through a temporary file so a reader never observes a partial
// summary.
func (s *Summary) WriteFile(ctx context.Context, path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if err := file.SaferWriteFile(ctx, data, path, file.Options{Perm: 0600}); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}
