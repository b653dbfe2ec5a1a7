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

package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestExists(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "present")
	if err := os.WriteFile(fpath, []byte("x"), 0644); err != nil {
		t.Fatalf("os.WriteFile(%q) failed: %v", fpath, err)
	}

	tests := []struct {
		name  string
		fpath string
		ftype Type
		want  bool
	}{
		{
			name:  "file-exists",
			fpath: fpath,
			ftype: TypeFile,
			want:  true,
		},
		{
			name:  "file-is-not-dir",
			fpath: fpath,
			ftype: TypeDir,
			want:  false,
		},
		{
			name:  "dir-exists",
			fpath: dir,
			ftype: TypeDir,
			want:  true,
		},
		{
			name:  "missing",
			fpath: filepath.Join(dir, "missing"),
			ftype: TypeFile,
			want:  false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Exists(tc.fpath, tc.ftype); got != tc.want {
				t.Errorf("Exists(%q, %v) = %t, want %t", tc.fpath, tc.ftype, got, tc.want)
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "sub", "out.txt")
	want := "content"

	if err := WriteFile(context.Background(), []byte(want), fpath, Options{Perm: 0600}); err != nil {
		t.Fatalf("WriteFile(%q) = %v, want nil", fpath, err)
	}

	got, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("os.ReadFile(%q) failed: %v", fpath, err)
	}
	if string(got) != want {
		t.Errorf("WriteFile(%q) wrote %q, want %q", fpath, string(got), want)
	}

	stat, err := os.Stat(fpath)
	if err != nil {
		t.Fatalf("os.Stat(%q) failed: %v", fpath, err)
	}
	if stat.Mode().Perm() != 0600 {
		t.Errorf("WriteFile(%q) created mode %v, want 0600", fpath, stat.Mode().Perm())
	}
}

func TestSaferWriteFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "out.txt")

	if err := os.WriteFile(fpath, []byte("old"), 0644); err != nil {
		t.Fatalf("os.WriteFile(%q) failed: %v", fpath, err)
	}

	if err := SaferWriteFile(context.Background(), []byte("new"), fpath, Options{Perm: 0600}); err != nil {
		t.Fatalf("SaferWriteFile(%q) = %v, want nil", fpath, err)
	}

	got, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("os.ReadFile(%q) failed: %v", fpath, err)
	}
	if string(got) != "new" {
		t.Errorf("SaferWriteFile(%q) wrote %q, want %q", fpath, string(got), "new")
	}
}

func TestTouch(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "log", "audit.log")

	if err := Touch(fpath, 0600); err != nil {
		t.Fatalf("Touch(%q) = %v, want nil", fpath, err)
	}
	if !Exists(fpath, TypeFile) {
		t.Fatalf("Exists(%q, TypeFile) = false, want true", fpath)
	}

	// Touching again must keep contents and re-assert the mode.
	if err := os.WriteFile(fpath, []byte("entry\n"), 0644); err != nil {
		t.Fatalf("os.WriteFile(%q) failed: %v", fpath, err)
	}
	if err := Touch(fpath, 0600); err != nil {
		t.Fatalf("Touch(%q) = %v, want nil", fpath, err)
	}

	got, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("os.ReadFile(%q) failed: %v", fpath, err)
	}
	if string(got) != "entry\n" {
		t.Errorf("Touch(%q) truncated file, got %q", fpath, string(got))
	}

	stat, err := os.Stat(fpath)
	if err != nil {
		t.Fatalf("os.Stat(%q) failed: %v", fpath, err)
	}
	if stat.Mode().Perm() != 0600 {
		t.Errorf("Touch(%q) left mode %v, want 0600", fpath, stat.Mode().Perm())
	}
}
