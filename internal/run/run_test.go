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

package run

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestWithContextOutput(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "stdout",
			opts: Options{
				OutputType: OutputStdout,
				Name:       "echo",
				Args:       []string{"-n", "foobar"},
			},
			want: "foobar",
		},
		{
			name: "combined",
			opts: Options{
				OutputType: OutputCombined,
				Name:       "sh",
				Args:       []string{"-c", "printf out; printf err 1>&2"},
			},
			want: "outerr",
		},
		{
			name: "stdin",
			opts: Options{
				OutputType: OutputStdout,
				Name:       "cat",
				Input:      "piped input",
			},
			want: "piped input",
		},
		{
			name: "none",
			opts: Options{
				OutputType: OutputNone,
				Name:       "true",
			},
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := WithContext(context.Background(), tc.opts)
			if err != nil {
				t.Fatalf("WithContext(ctx, %+v) = %v, want nil", tc.opts, err)
			}
			if res.Output != tc.want {
				t.Errorf("WithContext(ctx, %+v) output = %q, want %q", tc.opts, res.Output, tc.want)
			}
		})
	}
}

func TestWithContextExitError(t *testing.T) {
	opts := Options{
		OutputType: OutputCombined,
		Name:       "sh",
		Args:       []string{"-c", "exit 2"},
	}

	_, err := WithContext(context.Background(), opts)
	if err == nil {
		t.Fatalf("WithContext(ctx, %+v) = nil, want error", opts)
	}

	ee, ok := AsExitError(err)
	if !ok {
		t.Fatalf("AsExitError(%v) = false, want true", err)
	}
	if ee.ExitCode() != 2 {
		t.Errorf("ExitCode() = %d, want 2", ee.ExitCode())
	}
}

func TestWithContextErrorIncludesStderr(t *testing.T) {
	opts := Options{
		OutputType: OutputStdout,
		Name:       "sh",
		Args:       []string{"-c", "echo failure detail 1>&2; exit 1"},
	}

	_, err := WithContext(context.Background(), opts)
	if err == nil {
		t.Fatalf("WithContext(ctx, %+v) = nil, want error", opts)
	}
	if got := err.Error(); !strings.Contains(got, "failure detail") {
		t.Errorf("WithContext(ctx, %+v) error %q does not contain stderr output", opts, got)
	}
}

func TestWithContextTimeout(t *testing.T) {
	opts := Options{
		OutputType: OutputNone,
		Name:       "sleep",
		Args:       []string{"5"},
		Timeout:    50 * time.Millisecond,
	}

	_, err := WithContext(context.Background(), opts)
	if err == nil {
		t.Fatalf("WithContext(ctx, %+v) = nil, want error", opts)
	}
	if _, ok := AsTimeoutError(err); !ok {
		t.Errorf("AsTimeoutError(%v) = false, want true", err)
	}
}

func TestAsExitErrorNil(t *testing.T) {
	if _, ok := AsExitError(nil); ok {
		t.Error("AsExitError(nil) = true, want false")
	}
	if _, ok := AsTimeoutError(nil); ok {
		t.Error("AsTimeoutError(nil) = true, want false")
	}
}
