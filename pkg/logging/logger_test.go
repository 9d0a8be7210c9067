// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got := tt.level.toSlogLevel()
			if got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo}, // Unknown defaults to Info
		{"", LevelInfo},
	}

	for _, tt := range tests {
		got := ParseLevel(tt.name)
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	logger := New(Config{})
	defer logger.Close()

	if logger.slog == nil {
		t.Fatal("New() returned logger with nil slog")
	}
	if logger.file != nil {
		t.Error("New() opened a file without LogDir set")
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "ckg-test",
		Quiet:   true,
	})

	logger.Info("scan started", "project_id", "demo")
	logger.Debug("batch queued", "language", "go")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	wantName := "ckg-test_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, `"msg":"scan started"`) {
		t.Errorf("file log missing info entry, got: %s", content)
	}
	if !strings.Contains(content, `"project_id":"demo"`) {
		t.Errorf("file log missing attribute, got: %s", content)
	}
	if !strings.Contains(content, `"service":"ckg-test"`) {
		t.Errorf("file log missing service attribute, got: %s", content)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "filter-test",
		Quiet:   true,
	})

	logger.Info("should be filtered")
	logger.Warn("should appear")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	wantName := "filter-test_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}

	content := string(data)
	if strings.Contains(content, "should be filtered") {
		t.Error("info entry written despite warn level")
	}
	if !strings.Contains(content, "should appear") {
		t.Error("warn entry missing")
	}
}

func TestLogger_With(t *testing.T) {
	dir := t.TempDir()

	parent := New(Config{
		LogDir:  dir,
		Service: "with-test",
		Quiet:   true,
	})
	defer parent.Close()

	child := parent.With("build_id", "b-123")
	child.Info("build started")
	parent.Info("no build attribute")

	wantName := "with-test_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"build_id":"b-123"`) {
		t.Error("child log missing inherited attribute")
	}
	if strings.Contains(lines[1], "build_id") {
		t.Error("parent log gained child attribute")
	}
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() on stderr-only logger error = %v", err)
	}
	// Second close is also safe.
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Service != "ckg" {
		t.Errorf("Default() service = %q, want %q", logger.config.Service, "ckg")
	}
	if logger.config.Level != LevelInfo {
		t.Errorf("Default() level = %v, want %v", logger.config.Level, LevelInfo)
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	debugOpts := &slog.HandlerOptions{Level: slog.LevelDebug}
	errorOpts := &slog.HandlerOptions{Level: slog.LevelError}

	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(os.Stderr, errorOpts),
		slog.NewTextHandler(os.Stderr, debugOpts),
	}}

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("multiHandler should be enabled if any handler is enabled")
	}

	strict := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(os.Stderr, errorOpts),
	}}
	if strict.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("multiHandler enabled for level below all handlers")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("home directory unavailable")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/.ckg/logs", filepath.Join(home, ".ckg/logs")},
		{"/var/log/ckg", "/var/log/ckg"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
