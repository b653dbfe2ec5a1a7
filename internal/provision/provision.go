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

// Package provision reconciles roster records against the system account
// databases: groups, the account itself, its home directory, and a freshly
// generated credential.
//
// Reconciliation is additive. A new account is created with exactly the
// requested group set, while re-running a roster only adds memberships and
// never removes ones no longer listed - deprovisioning is out of scope for
// this tool.
package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/opsward/userprov/internal/accounts"
	"github.com/opsward/userprov/internal/cfg"
	"github.com/opsward/userprov/internal/credstore"
	"github.com/opsward/userprov/internal/password"
	"github.com/opsward/userprov/internal/roster"
)

// homeDirPerm restricts home directories to their owner.
const homeDirPerm = 0700

// Account operations are bound through package variables so tests can run
// the pipeline against fakes without system privilege.
var (
	findUser            = accounts.FindUser
	findGroup           = accounts.FindGroup
	findGroupByGID      = accounts.FindGroupByGID
	createUser          = accounts.CreateUser
	createGroup         = accounts.CreateGroup
	addUserToGroup      = accounts.AddUserToGroup
	setUserPrimaryGroup = accounts.SetUserPrimaryGroup
	setPassword         = accounts.SetPassword
	generatePassword    = password.Generate
	hashPassword        = password.Hash
)

// Status is the terminal state of a single roster record.
type Status string

const (
	// StatusSuccess means the record was fully reconciled and its credential
	// recorded.
	StatusSuccess Status = "success"
	// StatusSkipped means the line was skipped without being processed, e.g.
	// an unparseable roster entry.
	StatusSkipped Status = "skipped"
	// StatusFailed means a fatal step of the record's pipeline failed.
	StatusFailed Status = "failed"
)

// Outcome is the per-record result collected into the run summary.
type Outcome struct {
	// Username is the record's username, empty for unparseable lines.
	Username string `yaml:"username,omitempty"`
	// Line is the roster line the record came from.
	Line int `yaml:"line,omitempty"`
	// Status is the record's terminal state.
	Status Status `yaml:"status"`
	// Detail describes failures and skips.
	Detail string `yaml:"detail,omitempty"`
}

// Summary aggregates the outcomes of a full run.
type Summary struct {
	Total     int       `yaml:"total"`
	Succeeded int       `yaml:"succeeded"`
	Failed    int       `yaml:"failed"`
	Skipped   int       `yaml:"skipped"`
	Records   []Outcome `yaml:"records"`
}

func (s *Summary) add(o Outcome) {
	s.Total++
	switch o.Status {
	case StatusSuccess:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	}
	s.Records = append(s.Records, o)
}

// Run processes every roster record in order, one at a time. Failures are
// confined to the record (or sub-step) they occur in, the run itself always
// completes.
func Run(ctx context.Context, records []roster.Record, issues []roster.Issue) *Summary {
	summary := &Summary{}

	for _, issue := range issues {
		galog.Errorf("Skipping invalid roster entry: %v.", issue.Err)
		summary.add(Outcome{Line: issue.Line, Status: StatusSkipped, Detail: issue.Err.Error()})
	}

	for _, rec := range records {
		summary.add(provisionRecord(ctx, rec))
	}

	galog.Infof("User provisioning completed: %d records, %d succeeded, %d failed, %d skipped.",
		summary.Total, summary.Succeeded, summary.Failed, summary.Skipped)
	return summary
}

// provisionRecord runs the full pipeline for one record: groups, account,
// home directory, password, credential.
func provisionRecord(ctx context.Context, rec roster.Record) Outcome {
	config := cfg.Retrieve()
	outcome := Outcome{Username: rec.Name, Line: rec.Line}

	// The primary group carries the username; supplementary groups follow.
	// A group failing to materialize does not stop the record - the later
	// steps fail (or succeed) on their own.
	ensureGroup(ctx, rec.Name)
	for _, g := range rec.Groups {
		ensureGroup(ctx, g)
	}

	u, err := ensureUser(ctx, rec)
	if err != nil {
		galog.Errorf("Failed to provision user %s (line %d): %v.", rec.Name, rec.Line, err)
		outcome.Status = StatusFailed
		outcome.Detail = err.Error()
		return outcome
	}

	enforceHomeDir(u)

	secret, hashed, err := newCredential(config.Credentials)
	if err != nil {
		galog.Errorf("Failed to derive credential for user %s: %v.", rec.Name, err)
		outcome.Status = StatusFailed
		outcome.Detail = fmt.Sprintf("credential generation failed: %v", err)
		return outcome
	}

	if err := setPassword(ctx, u, secret, hashed); err != nil {
		galog.Errorf("Failed to set password for user %s: %v.", rec.Name, err)
		outcome.Status = StatusFailed
		outcome.Detail = "password assignment failed"
		return outcome
	}
	galog.Infof("Set password for user %s.", rec.Name)

	store := credstore.New(config.Credentials.File)
	if err := store.Append(rec.Name, secret); err != nil {
		galog.Errorf("Failed to record credential for user %s: %v.", rec.Name, err)
		outcome.Status = StatusFailed
		outcome.Detail = "credential not recorded"
		return outcome
	}

	outcome.Status = StatusSuccess
	return outcome
}

// newCredential generates the secret handed to the password command and
// recorded in the credential store. With store_hashed enabled that is the
// SHA-512 crypt hash of the generated password, the plaintext never leaves
// this function.
func newCredential(creds *cfg.Credentials) (string, bool, error) {
	length := creds.PasswordLength
	if length <= 0 {
		length = 12
	}

	plain := generatePassword(length)
	if !creds.StoreHashed {
		return plain, false, nil
	}

	hash, err := hashPassword(plain)
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// ensureGroup creates the named group unless it already exists. Existing
// groups are left untouched and not reported as created.
func ensureGroup(ctx context.Context, name string) {
	if name == "" {
		return
	}

	if _, err := findGroup(ctx, name); err == nil {
		galog.V(2).Debugf("Group %s already exists.", name)
		return
	}

	if err := createGroup(ctx, name); err != nil {
		galog.Errorf("Failed to create group %s: %v.", name, err)
		return
	}
	galog.Infof("Created group %s.", name)
}

// ensureUser finds the record's account, creating it if absent. For existing
// accounts the primary group is aligned and the listed supplementary
// memberships added, both best-effort. The returned error is reserved for
// account creation failing - the record cannot proceed without an account.
func ensureUser(ctx context.Context, rec roster.Record) (*accounts.User, error) {
	config := cfg.Retrieve()

	u, err := findUser(ctx, rec.Name)
	if err == nil {
		alignPrimaryGroup(ctx, u, rec.Name)
		for _, g := range rec.Groups {
			if err := addUserToGroup(ctx, u, &accounts.Group{Name: g}); err != nil {
				galog.Errorf("Failed to add user %s to group %s: %v.", u.Username, g, err)
			}
		}
		// Re-read the entry, the primary group may have changed above.
		if refreshed, err := findUser(ctx, rec.Name); err == nil {
			u = refreshed
		}
		return u, nil
	}
	galog.Debugf("User %s does not exist (lookup returned %v), creating.", rec.Name, err)

	primary, err := findGroup(ctx, rec.Name)
	if err != nil {
		return nil, fmt.Errorf("primary group %s unavailable: %w", rec.Name, err)
	}

	var supplementary []*accounts.Group
	for _, g := range rec.Groups {
		supplementary = append(supplementary, &accounts.Group{Name: g})
	}

	newUser := &accounts.User{
		Username: rec.Name,
		HomeDir:  filepath.Join(config.Accounts.HomeBaseDir, rec.Name),
		Shell:    config.Accounts.DefaultShell,
	}
	if err := createUser(ctx, newUser, primary, supplementary); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", rec.Name, err)
	}

	u, err = findUser(ctx, rec.Name)
	if err != nil {
		return nil, fmt.Errorf("could not find user %s after creation: %w", rec.Name, err)
	}
	galog.Infof("Created user %s.", rec.Name)
	return u, nil
}

// alignPrimaryGroup reassigns the user's primary group to the desired one
// when they differ. Failures are logged, the record proceeds regardless.
func alignPrimaryGroup(ctx context.Context, u *accounts.User, want string) {
	current, err := findGroupByGID(ctx, u.GID)
	if err == nil && current.Name == want {
		return
	}
	if err != nil {
		galog.Warnf("Could not resolve primary group of user %s (gid %s): %v.", u.Username, u.GID, err)
	}

	desired, err := findGroup(ctx, want)
	if err != nil {
		galog.Errorf("Cannot reassign primary group of user %s, group %s unavailable: %v.", u.Username, want, err)
		return
	}

	if err := setUserPrimaryGroup(ctx, u, desired); err != nil {
		galog.Errorf("Failed to set primary group of user %s to %s: %v.", u.Username, want, err)
		return
	}
	galog.Infof("Reassigned primary group of user %s to %s.", u.Username, want)
}

// enforceHomeDir guarantees the user's home directory exists, is owned by
// the user and their primary group, and is restricted to the owner.
// Failures here are warnings, the account itself is functional.
func enforceHomeDir(u *accounts.User) {
	if u.HomeDir == "" {
		galog.Warnf("User %s has no home directory set, skipping enforcement.", u.Username)
		return
	}

	if _, err := os.Stat(u.HomeDir); os.IsNotExist(err) {
		if err := os.MkdirAll(u.HomeDir, homeDirPerm); err != nil {
			galog.Warnf("Failed to create home directory %s: %v.", u.HomeDir, err)
			return
		}
		galog.Infof("Created home directory %s.", u.HomeDir)
	}

	if err := chownRecursive(u.HomeDir, u.UnixUID(), u.UnixGID()); err != nil {
		galog.Warnf("Failed to set ownership of %s: %v.", u.HomeDir, err)
	}

	if err := os.Chmod(u.HomeDir, homeDirPerm); err != nil {
		galog.Warnf("Failed to set permissions of %s: %v.", u.HomeDir, err)
	}
}

// chownRecursive changes ownership of root and everything under it.
func chownRecursive(root string, uid, gid int) error {
	return filepath.WalkDir(root, func(path string, _ os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Chown(path, uid, gid)
	})
}
