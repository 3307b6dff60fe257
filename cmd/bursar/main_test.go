package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"-h", []string{"-h"}},
		{"-help", []string{"-help"}},
		{"--help", []string{"--help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errBuf bytes.Buffer
			if err := run(context.Background(), &out, &errBuf, tt.args); err != nil {
				t.Fatalf("run() = %v, want nil", err)
			}
			got := out.String()
			if !strings.Contains(got, "Usage: bursar") {
				t.Errorf("output missing usage line:\n%s", got)
			}
			for _, cmd := range []string{"serve", "init", "call", "tools", "version"} {
				if !strings.Contains(got, cmd) {
					t.Errorf("usage missing command %q", cmd)
				}
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	var out, errBuf bytes.Buffer
	if err := run(context.Background(), &out, &errBuf, []string{"version"}); err != nil {
		t.Fatalf("run() = %v, want nil", err)
	}

	got := out.String()
	if !strings.Contains(got, "Bursar") {
		t.Errorf("version output missing product name:\n%s", got)
	}
	for _, field := range []string{"version:", "git_commit:", "go_version:", "os:", "arch:"} {
		if !strings.Contains(got, field) {
			t.Errorf("version output missing %q:\n%s", field, got)
		}
	}
}

func TestRun_VersionJSON(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"-o json", []string{"-o", "json", "version"}},
		{"-o=json", []string{"-o=json", "version"}},
		{"--output json", []string{"--output", "json", "version"}},
		{"--output=json", []string{"--output=json", "version"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errBuf bytes.Buffer
			if err := run(context.Background(), &out, &errBuf, tt.args); err != nil {
				t.Fatalf("run() = %v, want nil", err)
			}

			var info map[string]string
			if err := json.Unmarshal(out.Bytes(), &info); err != nil {
				t.Fatalf("version JSON did not parse: %v\n%s", err, out.String())
			}
			for _, key := range []string{"version", "git_commit", "go_version"} {
				if _, ok := info[key]; !ok {
					t.Errorf("version JSON missing key %q", key)
				}
			}
		})
	}
}

func TestRun_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown command", []string{"bogus"}, "unknown command: bogus"},
		{"unknown flag", []string{"-bogus"}, "unknown flag: -bogus"},
		{"bad output format", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"call without tool", []string{"call"}, "usage: bursar call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errBuf bytes.Buffer
			err := run(context.Background(), &out, &errBuf, tt.args)
			if err == nil {
				t.Fatalf("run(%v) = nil, want error containing %q", tt.args, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run(%v) = %q, want it to contain %q", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestRun_SubcommandArgsCollected(t *testing.T) {
	// Arguments after the command name flow to the subcommand even when
	// they look like flags; init treats the first one as the target dir.
	dir := t.TempDir()
	var out, errBuf bytes.Buffer
	if err := run(context.Background(), &out, &errBuf, []string{"init", dir}); err != nil {
		t.Fatalf("run() = %v, want nil", err)
	}
	if !strings.Contains(out.String(), dir) {
		t.Errorf("init output does not mention target dir %s:\n%s", dir, out.String())
	}
}
