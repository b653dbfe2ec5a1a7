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

package accounts

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"strings"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/opsward/userprov/internal/cfg"
	"github.com/opsward/userprov/internal/run"
)

const (
	// getentNoSuchKey is the exit code returned by getent when a key is not
	// found in the database.
	//
	// Per documentation, exit code 2: "One or more supplied key could not be
	// found in the database", see the man page:
	//
	// https://man7.org/linux/man-pages/man1/getent.1.html.
	getentNoSuchKey = 2
)

// FindUser gets the information of the user, returning user.UnknownUserError
// if the user does not exist on the system or the wrapped run error if the
// lookup could not be performed.
//
// Any user returned by this function is guaranteed to have a valid UID and
// GID - a call to ValidateUnixIDS() will never return an error.
func FindUser(ctx context.Context, username string) (*User, error) {
	getent, err := run.WithContext(ctx, run.Options{
		OutputType: run.OutputStdout,
		Name:       "getent",
		Args:       []string{"passwd", username},
	})

	if err != nil {
		// No such key exit code is returned when the user does not exist.
		if err, ok := run.AsExitError(err); ok && err.ExitCode() == getentNoSuchKey {
			return nil, user.UnknownUserError(username)
		}
		return nil, fmt.Errorf("could not get user entry: %w", err)
	}

	// The result of getent will contain a single entry (given we are querying
	// a single user).
	passwdEntry, err := parsePasswdEntry(getent.Output, username)
	if err != nil {
		return nil, fmt.Errorf("could not parse user %s: %w", username, err)
	}

	return passwdEntry, nil
}

// parsePasswdEntry parses /etc/passwd style input for the named user.
func parsePasswdEntry(line string, username string) (*User, error) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\n"))
	prefix := username + ":"

	// Validate the correctness of the entry format, it should contain the
	// username followed by a colon as a prefix (i.e. "kevin:").
	if !strings.HasPrefix(line, prefix) {
		return nil, fmt.Errorf("invalid passwd entry for %q, expected prefix %q", username, prefix)
	}

	// kevin:x:1005:1006::/home/kevin:/usr/bin/zsh
	parts := strings.SplitN(line, ":", 7)
	if len(parts) < 7 {
		return nil, fmt.Errorf("invalid passwd entry for %s", username)
	}

	res := &User{
		Username: parts[0],
		Password: parts[1],
		UID:      parts[2],
		GID:      parts[3],
		Name:     parts[4],
		HomeDir:  parts[5],
		Shell:    parts[6],
	}

	if err := res.ValidateUnixIDS(); err != nil {
		return nil, err
	}

	return res, nil
}

// FindGroup gets the information of the group, returning
// user.UnknownGroupError if the group does not exist on the system. Returns
// the wrapped run error if the command failed.
//
// Any group returned by this function is guaranteed to have a valid GID - a
// call to ValidateUnixGID() will never return an error.
func FindGroup(ctx context.Context, groupName string) (*Group, error) {
	getent, err := run.WithContext(ctx, run.Options{
		OutputType: run.OutputStdout,
		Name:       "getent",
		Args:       []string{"group", groupName},
	})

	if err != nil {
		// No such key exit code is returned when the group does not exist.
		if err, ok := run.AsExitError(err); ok && err.ExitCode() == getentNoSuchKey {
			return nil, user.UnknownGroupError(groupName)
		}
		return nil, fmt.Errorf("could not get group: %w", err)
	}

	groupEntry, err := parseGroupEntry(getent.Output)
	if err != nil {
		return nil, fmt.Errorf("could not parse group %s: %w", groupName, err)
	}

	return groupEntry, nil
}

// FindGroupByGID reverse-maps a group id to its group entry. getent accepts
// a numeric gid as the group database key.
func FindGroupByGID(ctx context.Context, gid string) (*Group, error) {
	getent, err := run.WithContext(ctx, run.Options{
		OutputType: run.OutputStdout,
		Name:       "getent",
		Args:       []string{"group", gid},
	})

	if err != nil {
		if err, ok := run.AsExitError(err); ok && err.ExitCode() == getentNoSuchKey {
			return nil, user.UnknownGroupIdError(gid)
		}
		return nil, fmt.Errorf("could not get group by gid: %w", err)
	}

	groupEntry, err := parseGroupEntry(getent.Output)
	if err != nil {
		return nil, fmt.Errorf("could not parse group with gid %s: %w", gid, err)
	}

	return groupEntry, nil
}

// parseGroupEntry parses a /etc/group style entry.
func parseGroupEntry(line string) (*Group, error) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\n"))

	// staff:!:1:shadow,cjf
	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 4 {
		return nil, fmt.Errorf("invalid group entry %q", line)
	}

	var members []string
	for _, m := range strings.Split(parts[3], ",") {
		if strings.TrimSpace(m) != "" {
			members = append(members, m)
		}
	}

	res := &Group{
		Name:    parts[0],
		GID:     parts[2],
		Members: members,
	}

	if err := res.ValidateUnixGID(); err != nil {
		return nil, err
	}

	return res, nil
}

// CreateUser creates a user with the given username, home directory, shell
// and primary group, and the supplementary groups in the same invocation.
// Returns the wrapped run error if the command failed. If accurate
// information about the created user is important the caller should call
// FindUser after creation.
func CreateUser(ctx context.Context, u *User, primary *Group, supplementary []*Group) error {
	if u == nil {
		return errors.New("user is nil")
	}
	if primary == nil {
		return errors.New("primary group is nil")
	}
	galog.V(1).Debugf("Creating user %s", u.Username)

	config := cfg.Retrieve()
	cmd := config.Accounts.UserAddCmd
	if len(supplementary) > 0 {
		cmd = config.Accounts.UserAddGroupsCmd
	}

	var names []string
	for _, g := range supplementary {
		names = append(names, g.Name)
	}

	vars := templateVars(u, primary)
	vars["{groups}"] = strings.Join(names, ",")

	if _, err := runCommandTemplate(ctx, cmd, vars); err != nil {
		return fmt.Errorf("failed to run useradd_cmd %s: %w", cmd, err)
	}
	galog.V(1).Debugf("Successfully created user %s", u.Username)
	return nil
}

// CreateGroup creates a group with the given group name. Returns the wrapped
// run error if the command failed.
func CreateGroup(ctx context.Context, groupName string) error {
	galog.V(1).Debugf("Creating group %s", groupName)
	cmd := cfg.Retrieve().Accounts.GroupAddCmd
	if _, err := runCommandTemplate(ctx, cmd, templateVars(nil, &Group{Name: groupName})); err != nil {
		return fmt.Errorf("failed to run groupadd_cmd %s: %w", cmd, err)
	}
	galog.V(1).Debugf("Successfully created group %s", groupName)
	return nil
}

// AddUserToGroup adds the user to the named group, preserving the user's
// other memberships. Returns the wrapped run error if the command failed.
func AddUserToGroup(ctx context.Context, u *User, g *Group) error {
	if u == nil {
		return errors.New("user is nil")
	}
	if g == nil {
		return errors.New("group is nil")
	}

	galog.V(1).Debugf("Adding user %s to group %s", u.Username, g.Name)
	cmd := cfg.Retrieve().Accounts.GPasswdAddCmd
	if _, err := runCommandTemplate(ctx, cmd, templateVars(u, g)); err != nil {
		return fmt.Errorf("failed to run gpasswd_add_cmd %s: %w", cmd, err)
	}
	galog.V(1).Debugf("Successfully added user %s to group %s", u.Username, g.Name)
	return nil
}

// SetUserPrimaryGroup reassigns the user's primary group. Returns the
// wrapped run error if the command failed.
func SetUserPrimaryGroup(ctx context.Context, u *User, g *Group) error {
	if u == nil {
		return errors.New("user is nil")
	}
	if g == nil {
		return errors.New("group is nil")
	}

	galog.V(1).Debugf("Setting primary group of user %s to %s", u.Username, g.Name)
	cmd := cfg.Retrieve().Accounts.UserModPrimaryCmd
	if _, err := runCommandTemplate(ctx, cmd, templateVars(u, g)); err != nil {
		return fmt.Errorf("failed to run usermod_primary_cmd %s: %w", cmd, err)
	}
	galog.V(1).Debugf("Successfully set primary group of user %s to %s", u.Username, g.Name)
	return nil
}

// SetPassword sets the user's password without requiring the previous one.
// The password is handed to the configured command over stdin, never through
// argv. hashed selects the crypt(3) hash variant of the command.
func SetPassword(ctx context.Context, u *User, password string, hashed bool) error {
	if u == nil {
		return errors.New("user is nil")
	}
	if password == "" {
		return errors.New("password is empty")
	}

	galog.V(1).Debugf("Setting password for user %s", u.Username)
	config := cfg.Retrieve()
	cmd := config.Accounts.ChPasswdCmd
	if hashed {
		cmd = config.Accounts.ChPasswdHashedCmd
	}

	vars := templateVars(u, nil)
	vars["{password}"] = password

	if _, err := runCommandTemplate(ctx, cmd, vars); err != nil {
		// The error text of a failed chpasswd never contains the password, but
		// the expanded command line would - report the template instead.
		return fmt.Errorf("failed to run password command %s: %w", cmd, err)
	}
	galog.V(1).Debugf("Successfully set password for user %s", u.Username)
	return nil
}

// templateVars assembles the placeholder replacements for the given user and
// group.
func templateVars(u *User, g *Group) map[string]string {
	vars := make(map[string]string)
	if u != nil {
		vars["{user}"] = u.Username
		vars["{home}"] = u.HomeDir
		vars["{shell}"] = u.Shell
	}
	if g != nil {
		vars["{group}"] = g.Name
	}
	return vars
}

// runCommandTemplate runs a templated command in the style of cfg.Accounts
// config options. The "input|cmd" form pipes the expanded input to the
// command's stdin.
func runCommandTemplate(ctx context.Context, cmd string, vars map[string]string) (*run.Result, error) {
	var input string

	before, after, found := strings.Cut(cmd, "|")
	if found {
		input = execCommandTemplate(before, vars)
		cmd = after
	}

	cmd = execCommandTemplate(cmd, vars)
	tokens := strings.Fields(cmd)
	if len(tokens) < 1 {
		return nil, errors.New("no command configured")
	}

	cmdopts := run.Options{
		OutputType: run.OutputCombined,
		Name:       tokens[0],
		Args:       tokens[1:],
		Input:      input,
	}

	return run.WithContext(ctx, cmdopts)
}

// execCommandTemplate replaces the known placeholders in the given string.
func execCommandTemplate(in string, vars map[string]string) string {
	out := in
	for placeholder, value := range vars {
		out = strings.Replace(out, placeholder, value, 1)
	}
	return out
}
