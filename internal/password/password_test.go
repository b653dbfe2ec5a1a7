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

package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/GehirnInc/crypt"
	_ "github.com/GehirnInc/crypt/sha512_crypt"
)

func swapForTest[T any](t *testing.T, old *T, new T) {
	t.Helper()
	saved := *old
	t.Cleanup(func() { *old = saved })
	*old = new
}

func checkPassword(t *testing.T, got string, wantLen int, allowed string) {
	t.Helper()
	if len(got) != wantLen {
		t.Errorf("Generate(%d) = %q, got length %d", wantLen, got, len(got))
	}
	for _, r := range got {
		if !strings.ContainsRune(allowed, r) {
			t.Errorf("Generate(%d) = %q contains %q outside the allowed charset", wantLen, got, r)
		}
	}
}

func TestGenerate(t *testing.T) {
	for range 100 {
		checkPassword(t, Generate(12), 12, Charset)
	}
}

func TestGenerateDeviceFallback(t *testing.T) {
	failing := func(n int) (string, error) {
		return "", errors.New("primary source unavailable")
	}
	swapForTest(t, &sources, []source{failing, deviceSource, clockSource})

	for range 20 {
		checkPassword(t, Generate(12), 12, Charset)
	}
}

func TestGenerateClockFallback(t *testing.T) {
	failing := func(n int) (string, error) {
		return "", errors.New("source unavailable")
	}
	swapForTest(t, &sources, []source{failing, failing, clockSource})

	for range 20 {
		checkPassword(t, Generate(12), 12, alnumCharset)
	}
}

func TestGenerateMissingEntropyDevice(t *testing.T) {
	failing := func(n int) (string, error) {
		return "", errors.New("primary source unavailable")
	}
	swapForTest(t, &sources, []source{failing, deviceSource, clockSource})
	swapForTest(t, &entropyDevice, "/nonexistent/device")

	checkPassword(t, Generate(12), 12, Charset)
}

func TestGenerateDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		pw := Generate(12)
		if seen[pw] {
			t.Fatalf("Generate(12) repeated password %q", pw)
		}
		seen[pw] = true
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		allowed string
		want    string
	}{
		{
			name:    "drops-disallowed",
			in:      "ab/c+d=",
			allowed: Charset,
			want:    "abc+d=",
		},
		{
			name:    "empty",
			in:      "",
			allowed: Charset,
			want:    "",
		},
		{
			name:    "alnum-only",
			in:      "a1!b2@",
			allowed: alnumCharset,
			want:    "a1b2",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := filter(tc.in, tc.allowed); got != tc.want {
				t.Errorf("filter(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestHash(t *testing.T) {
	hash, err := Hash("secret-password")
	if err != nil {
		t.Fatalf("Hash(%q) = %v, want nil", "secret-password", err)
	}
	if !strings.HasPrefix(hash, "$6$") {
		t.Errorf("Hash(%q) = %q, want $6$ prefix", "secret-password", hash)
	}
	if err := crypt.SHA512.New().Verify(hash, []byte("secret-password")); err != nil {
		t.Errorf("Verify(%q) = %v, want nil", hash, err)
	}
	if err := crypt.SHA512.New().Verify(hash, []byte("wrong")); err == nil {
		t.Error("Verify with wrong password = nil, want error")
	}
}
