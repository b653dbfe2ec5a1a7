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

// Package accounts queries and mutates the system account and group
// databases through the configured OS commands.
package accounts

import (
	"fmt"
	"strconv"
)

// User is the representation of a system user account.
type User struct {
	// Username is the username of the user.
	Username string
	// Password is the password field of the passwd entry (normally "x").
	Password string
	// UID is the user id of the user.
	UID string
	// GID is the id of the user's primary group.
	GID string
	// Name is the full name (GECOS) of the user.
	Name string
	// HomeDir is the home directory of the user.
	HomeDir string
	// Shell is the login shell of the user.
	Shell string
}

// Group is the representation of a system group.
type Group struct {
	// Name is the name of the group.
	Name string
	// GID is the group id of the group.
	GID string
	// Members is the list of members of the group.
	Members []string
}

// UnixUID returns the UID of the user as an integer.
func (u *User) UnixUID() int {
	val, err := strconv.Atoi(u.UID)
	// The validity of the UID must be checked during the instantiation of
	// User objects.
	if err != nil {
		panic(fmt.Errorf("failed to convert UID to int: %v", err))
	}
	return val
}

// UnixGID returns the GID of the user as an integer.
func (u *User) UnixGID() int {
	val, err := strconv.Atoi(u.GID)
	// The validity of the GID must be checked during the instantiation of
	// User objects.
	if err != nil {
		panic(fmt.Errorf("failed to convert GID to int: %v", err))
	}
	return val
}

// ValidateUnixIDS validates the UID and GID of the user - it determines if
// the set values are valid integers.
func (u *User) ValidateUnixIDS() error {
	if _, err := strconv.Atoi(u.UID); err != nil {
		return fmt.Errorf("failed to convert UID to int: %v", err)
	}

	if _, err := strconv.Atoi(u.GID); err != nil {
		return fmt.Errorf("failed to convert GID to int: %v", err)
	}
	return nil
}

// UnixGID returns the GID of the group as an integer.
func (g *Group) UnixGID() int {
	val, err := strconv.Atoi(g.GID)
	// The validity of the GID must be checked during the instantiation of
	// Group objects.
	if err != nil {
		panic(fmt.Errorf("failed to convert GID to int: %v", err))
	}
	return val
}

// ValidateUnixGID validates the GID of the group - it determines if the set
// value is a valid integer.
func (g *Group) ValidateUnixGID() error {
	if _, err := strconv.Atoi(g.GID); err != nil {
		return fmt.Errorf("failed to convert GID to int: %v", err)
	}
	return nil
}
