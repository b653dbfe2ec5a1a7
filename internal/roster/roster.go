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

// Package roster parses the declarative input file listing the accounts to
// provision.
package roster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/GoogleCloudPlatform/galog"
)

// Record is a single parsed roster entry.
type Record struct {
	// Name is the username, also the name of the account's primary group.
	Name string
	// Groups is the ordered list of supplementary groups, duplicates removed.
	Groups []string
	// Line is the 1-based roster line the record was parsed from.
	Line int
}

// Issue is a per-line parse failure. The run continues past issues, they are
// reported in the run summary.
type Issue struct {
	// Line is the 1-based roster line the issue was found on.
	Line int
	// Err describes the problem.
	Err error
}

// ParseFile reads the roster at path. See Parse.
func ParseFile(path string) ([]Record, []Issue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open roster file %q: %w", path, err)
	}
	defer f.Close()
	records, issues := Parse(f)
	return records, issues, nil
}

// Parse reads roster records from r. Blank lines are ignored, lines whose
// first non-blank character is '#' are skipped as comments. Every other line
// is "username[;group1,group2,...]"; whitespace is insignificant anywhere on
// the line and a missing ';' degrades to a username-only record. Lines with
// an empty username are reported as issues rather than aborting the parse.
func Parse(r io.Reader) ([]Record, []Issue) {
	var records []Record
	var issues []Issue

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		trimmed := strings.TrimSpace(text)

		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			galog.Infof("Skipping comment on line %d.", line)
			continue
		}

		name, groupList, _ := strings.Cut(stripSpace(text), ";")
		if name == "" {
			issues = append(issues, Issue{Line: line, Err: fmt.Errorf("line %d: empty username", line)})
			continue
		}

		records = append(records, Record{
			Name:   name,
			Groups: splitGroups(groupList),
			Line:   line,
		})
	}

	if err := scanner.Err(); err != nil {
		issues = append(issues, Issue{Line: 0, Err: fmt.Errorf("failed reading roster: %w", err)})
	}

	return records, issues
}

// splitGroups splits the comma separated group list, dropping empty tokens
// and duplicates while preserving order.
func splitGroups(list string) []string {
	var groups []string
	seen := make(map[string]bool)
	for _, g := range strings.Split(list, ",") {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		groups = append(groups, g)
	}
	return groups
}

// stripSpace removes all whitespace from s, internal runs included.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
