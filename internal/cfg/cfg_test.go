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

package cfg

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	if err := Load(nil); err != nil {
		t.Fatalf("Load(nil) = %v, want nil", err)
	}

	config := Retrieve()

	if config.Core == nil || config.Accounts == nil || config.Credentials == nil {
		t.Fatalf("Retrieve() returned nil sections: %+v", config)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"log_file", config.Core.LogFile, "/var/log/user_management.log"},
		{"log_level", config.Core.LogLevel, 3},
		{"groupadd_cmd", config.Accounts.GroupAddCmd, "groupadd {group}"},
		{"gpasswd_add_cmd", config.Accounts.GPasswdAddCmd, "gpasswd -a {user} {group}"},
		{"chpasswd_cmd", config.Accounts.ChPasswdCmd, "{user}:{password}|chpasswd"},
		{"default_shell", config.Accounts.DefaultShell, "/bin/bash"},
		{"home_base_dir", config.Accounts.HomeBaseDir, "/home"},
		{"credentials_file", config.Credentials.File, "/var/secure/user_passwords.txt"},
		{"password_length", config.Credentials.PasswordLength, 12},
		{"store_hashed", config.Credentials.StoreHashed, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("Load(nil) loaded %s = %v, want %v", tc.name, tc.got, tc.want)
			}
		})
	}
}

func TestLoadExtraDefaults(t *testing.T) {
	extra := `
[Credentials]
file = /tmp/creds.txt
password_length = 16

[Core]
log_level = 1
`
	if err := Load([]byte(extra)); err != nil {
		t.Fatalf("Load(extra) = %v, want nil", err)
	}

	config := Retrieve()
	if config.Credentials.File != "/tmp/creds.txt" {
		t.Errorf("Credentials.File = %q, want %q", config.Credentials.File, "/tmp/creds.txt")
	}
	if config.Credentials.PasswordLength != 16 {
		t.Errorf("Credentials.PasswordLength = %d, want 16", config.Credentials.PasswordLength)
	}
	if config.Core.LogLevel != 1 {
		t.Errorf("Core.LogLevel = %d, want 1", config.Core.LogLevel)
	}
	// Untouched keys keep their defaults.
	if config.Accounts.GroupAddCmd != "groupadd {group}" {
		t.Errorf("Accounts.GroupAddCmd = %q, want default", config.Accounts.GroupAddCmd)
	}
}

func TestRetrieveNotLoadedPanics(t *testing.T) {
	oldInstance := instance
	oldPanic := panicFc
	t.Cleanup(func() {
		instance = oldInstance
		panicFc = oldPanic
	})

	instance = nil
	var panicked bool
	panicFc = func(args ...any) {
		panicked = true
	}

	Retrieve()
	if !panicked {
		t.Error("Retrieve() without Load() did not panic")
	}
}
