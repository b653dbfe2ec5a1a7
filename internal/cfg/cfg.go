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

// Package cfg is responsible for loading and accessing the provisioning
// tool's configuration.
package cfg

import (
	"fmt"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/galog"
	"gopkg.in/ini.v1"
)

var (
	// instance is the single instance of configuration sections, once loaded
	// this package should always return it.
	instance *Sections

	// dataSources is a pointer to a data source listing function, unit tests
	// will want to change this pointer to whatever makes sense to its
	// implementation.
	dataSources = defaultDataSources

	// defaultConfigFile is the config file loaded on top of the built-in
	// defaults when present on the system.
	defaultConfigFile = "/etc/userprov.cfg"

	// panicFc is a reference to panic(), it's overridden in unit tests.
	panicFc = panicWrapper

	// cfgMu protects the initialization and retrieval of config instance.
	cfgMu sync.RWMutex
)

const (
	// defaultConfigTemplate is the built-in default configuration. Paths and
	// commands follow the conventional bulk-provisioning layout; any of them
	// can be overridden by the system config file or an extra source.
	defaultConfigTemplate = `
[Core]
log_level = 3
log_verbosity = 0
log_file = /var/log/user_management.log

[Accounts]
groupadd_cmd = groupadd {group}
useradd_cmd = useradd -m -d {home} -s {shell} -g {group} {user}
useradd_groups_cmd = useradd -m -d {home} -s {shell} -g {group} -G {groups} {user}
usermod_primary_cmd = usermod -g {group} {user}
gpasswd_add_cmd = gpasswd -a {user} {group}
chpasswd_cmd = {user}:{password}|chpasswd
chpasswd_hashed_cmd = {user}:{password}|chpasswd -e
default_shell = /bin/bash
home_base_dir = /home

[Credentials]
file = /var/secure/user_passwords.txt
password_length = 12
store_hashed = false
`
)

// Sections encapsulates all the configuration sections.
type Sections struct {
	// Core defines the tool's core configuration entries/keys.
	Core *Core `ini:"Core,omitempty"`

	// Accounts defines the account management commands and defaults.
	Accounts *Accounts `ini:"Accounts,omitempty"`

	// Credentials defines the generated credential handling options.
	Credentials *Credentials `ini:"Credentials,omitempty"`
}

// Core contains the core configuration entries, all configurations not
// tied/specific to a subsystem are defined in here.
type Core struct {
	// LogLevel defines the log level of the tool. The CLI's flag takes
	// precedence over this configuration.
	LogLevel int `ini:"log_level,omitempty"`
	// LogVerbosity defines the log verbosity of the tool. The CLI's flag takes
	// precedence over this configuration.
	LogVerbosity int `ini:"log_verbosity,omitempty"`
	// LogFile defines the audit log file. The CLI's flag takes precedence over
	// this configuration.
	LogFile string `ini:"log_file,omitempty"`
	// Version defines the version of the running binary. It's for internal use
	// only, the value is set dynamically when config is loaded in main. Any
	// values provided via config file will be overridden.
	Version string `ini:"-"`
}

// Accounts contains the configurations of the Accounts section. The command
// values support {user}, {group}, {groups}, {home}, {shell} and {password}
// placeholders, and the "input|cmd" form for commands reading stdin.
type Accounts struct {
	// GroupAddCmd is the command used to create a group.
	GroupAddCmd string `ini:"groupadd_cmd,omitempty"`
	// UserAddCmd is the command used to create a user without supplementary
	// groups.
	UserAddCmd string `ini:"useradd_cmd,omitempty"`
	// UserAddGroupsCmd is the command used to create a user with supplementary
	// groups.
	UserAddGroupsCmd string `ini:"useradd_groups_cmd,omitempty"`
	// UserModPrimaryCmd is the command used to reassign a user's primary group.
	UserModPrimaryCmd string `ini:"usermod_primary_cmd,omitempty"`
	// GPasswdAddCmd is the command used to add a user to a group.
	GPasswdAddCmd string `ini:"gpasswd_add_cmd,omitempty"`
	// ChPasswdCmd is the command used to set a user's password from plaintext.
	ChPasswdCmd string `ini:"chpasswd_cmd,omitempty"`
	// ChPasswdHashedCmd is the command used to set a user's password from a
	// crypt(3) hash.
	ChPasswdHashedCmd string `ini:"chpasswd_hashed_cmd,omitempty"`
	// DefaultShell is the login shell assigned to created users.
	DefaultShell string `ini:"default_shell,omitempty"`
	// HomeBaseDir is the base directory under which user homes are created.
	HomeBaseDir string `ini:"home_base_dir,omitempty"`
}

// Credentials contains the configurations of the Credentials section.
type Credentials struct {
	// File is the credential store path, lines are "username:password".
	File string `ini:"file,omitempty"`
	// PasswordLength is the length of generated passwords.
	PasswordLength int `ini:"password_length,omitempty"`
	// StoreHashed makes the tool hash generated passwords with SHA-512 crypt
	// before applying and storing them.
	StoreHashed bool `ini:"store_hashed,omitempty"`
}

// defaultDataSources returns the list of extra data sources layered on top of
// the built-in defaults, in increasing priority order.
func defaultDataSources(extraDefaults []byte) []any {
	var res []any

	if _, err := os.Stat(defaultConfigFile); err == nil {
		res = append(res, defaultConfigFile)
	}

	if len(extraDefaults) > 0 {
		res = append(res, extraDefaults)
	}

	return res
}

func panicWrapper(args ...any) {
	panic(fmt.Sprint(args...))
}

// Load loads the configuration from the built-in defaults, the system config
// file and the extraDefaults bytes (if any), mapping the result onto the
// Sections instance returned by Retrieve().
func Load(extraDefaults []byte) error {
	cfgMu.Lock()
	defer cfgMu.Unlock()

	opts := ini.LoadOptions{
		Loose:       true,
		Insensitive: true,
	}

	sources := dataSources(extraDefaults)
	galog.V(3).Debugf("Loading configuration from sources: %v", sources)
	cfg, err := ini.LoadSources(opts, []byte(defaultConfigTemplate), sources...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sections := new(Sections)
	if err := cfg.MapTo(sections); err != nil {
		return fmt.Errorf("failed to map configuration to object: %w", err)
	}

	instance = sections
	return nil
}

// Retrieve returns the configuration's instance previously loaded with Load().
func Retrieve() *Sections {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	if instance == nil {
		panicFc("cfg package was not initialized, Load() should be called in the early initialization code path")
	}
	return instance
}
