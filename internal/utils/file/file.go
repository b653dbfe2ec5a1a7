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

// Package file implements file related utilities for userprov.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Type is the type of file.
type Type int

// Options contain options for file modification operations behavior.
type Options struct {
	// Perm is the file permissions.
	Perm fs.FileMode
	// Owner indicates file ownership options to set.
	Owner *GUID
}

// GUID represents a file's user and group ownership.
type GUID struct {
	// UID is the uid of the file user owner.
	UID int
	// GID is the gid of the file group owner.
	GID int
}

const (
	// TypeDir is the type of directory.
	TypeDir Type = iota
	// TypeFile is the type of file.
	TypeFile
)

// Exists checks if a file or directory exists.
func Exists(fpath string, ftype Type) bool {
	stat, err := os.Stat(fpath)
	if err != nil {
		return false
	}

	if ftype == TypeDir && stat.IsDir() {
		return true
	}

	if ftype == TypeFile && !stat.IsDir() {
		return true
	}

	return false
}

// WriteFile creates parent directories if required and writes content to the
// output file. Wraps OS errors.
func WriteFile(ctx context.Context, content []byte, outputFile string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("unable to create required directories for %q: %w", outputFile, err)
	}
	if err := os.WriteFile(outputFile, content, opts.Perm); err != nil {
		return fmt.Errorf("unable to write to file %q: %w", outputFile, err)
	}
	if opts.Owner != nil {
		if err := os.Chown(outputFile, opts.Owner.UID, opts.Owner.GID); err != nil {
			return fmt.Errorf("error setting ownership of %q: %w", outputFile, err)
		}
	}
	return nil
}

// SaferWriteFile writes to a temporary file and then replaces the expected
// output file.
// This prevents other processes from reading partial content while the writer
// is still writing.
func SaferWriteFile(ctx context.Context, content []byte, outputFile string, opts Options) error {
	dir := filepath.Dir(outputFile)
	name := filepath.Base(outputFile)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create required directories %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, name+"*")
	if err != nil {
		return fmt.Errorf("unable to create temporary file under %q: %w", dir, err)
	}

	if err := os.Chmod(tmp.Name(), opts.Perm); err != nil {
		return fmt.Errorf("unable to set permissions on temporary file %q: %w", dir, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := WriteFile(ctx, content, tmp.Name(), opts); err != nil {
		return fmt.Errorf("unable to write to a temporary file %q: %w", tmp.Name(), err)
	}

	return os.Rename(tmp.Name(), outputFile)
}

// Touch creates the named file with the given permissions if it does not
// exist, and re-asserts the permissions if it does.
func Touch(fpath string, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
		return fmt.Errorf("unable to create required directories for %q: %w", fpath, err)
	}

	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return fmt.Errorf("unable to create file %q: %w", fpath, err)
	}

	if err := f.Chmod(perm); err != nil {
		f.Close()
		return fmt.Errorf("unable to set permissions on %q: %w", fpath, err)
	}

	return f.Close()
}
