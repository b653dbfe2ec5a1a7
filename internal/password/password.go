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

// Package password generates account credentials from an ordered chain of
// randomness sources and produces shadow(5) compatible hashes.
package password

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/GehirnInc/crypt"
	_ "github.com/GehirnInc/crypt/sha512_crypt"

	"github.com/GoogleCloudPlatform/galog"
)

// Charset is the set of characters generated passwords are drawn from.
const Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%&*()_+-="

// alnumCharset is the reduced set the clock derived source is allowed to
// produce.
const alnumCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	// entropyDevice is the raw entropy device read by the fallback source,
	// overridden in tests.
	entropyDevice = "/dev/urandom"

	// sources is the ordered chain of randomness sources. Each is tried in
	// turn until one yields enough allowed characters, tests override entries
	// to force fallbacks.
	sources = []source{cryptoSource, deviceSource, clockSource}
)

// source produces at least n characters of the allowed charset, or an error
// when the underlying randomness is unavailable or insufficient.
type source func(n int) (string, error)

// Generate returns a password of length n drawn from Charset. The sources are
// degraded through in order and the last one cannot fail, so the function
// always returns a full-length password.
func Generate(n int) string {
	for i, src := range sources {
		out, err := src(n)
		if err != nil {
			galog.V(1).Debugf("Password source %d failed (%v), falling back.", i, err)
			continue
		}
		return out[:n]
	}
	// clockSource is deterministic about its output length, reaching this
	// point means the chain was misconfigured in tests.
	panic("password: all randomness sources failed")
}

// cryptoSource is the primary source: high quality random bytes, base64
// encoded and filtered down to the allowed charset.
func cryptoSource(n int) (string, error) {
	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("crypto/rand read failed: %w", err)
	}

	filtered := filter(base64.StdEncoding.EncodeToString(raw), Charset)
	if len(filtered) < n {
		return "", fmt.Errorf("filtered output too short: %d of %d characters", len(filtered), n)
	}
	return filtered, nil
}

// deviceSource reads raw bytes from the system entropy device and filters
// them to the allowed charset.
func deviceSource(n int) (string, error) {
	f, err := os.Open(entropyDevice)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", entropyDevice, err)
	}
	defer f.Close()

	var out strings.Builder
	buf := make([]byte, 64)
	// Filtering discards most raw bytes, a few reads are usually enough. The
	// bound keeps a broken device from spinning forever.
	for reads := 0; out.Len() < n && reads < 32; reads++ {
		read, err := f.Read(buf)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", entropyDevice, err)
		}
		out.WriteString(filter(string(buf[:read]), Charset))
	}

	if out.Len() < n {
		return "", fmt.Errorf("entropy device yielded %d of %d characters", out.Len(), n)
	}
	return out.String(), nil
}

// clockSource is the last resort: pseudo randomness derived from the
// high-resolution clock through a cryptographic hash, reduced to
// alphanumerics. The hex digest always survives the filter, so the source
// cannot come up short.
func clockSource(n int) (string, error) {
	var out strings.Builder
	for out.Len() < n {
		sum := sha512.Sum512([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
		out.WriteString(filter(hex.EncodeToString(sum[:]), alnumCharset))
	}
	return out.String(), nil
}

// filter returns s reduced to the characters present in allowed, preserving
// order.
func filter(s, allowed string) string {
	var out strings.Builder
	for _, r := range s {
		if strings.ContainsRune(allowed, r) {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// Hash derives a SHA-512 crypt ($6$) hash of the given plaintext, suitable
// for chpasswd -e and the shadow database.
func Hash(plain string) (string, error) {
	return crypt.SHA512.New().Generate([]byte(plain), nil)
}
