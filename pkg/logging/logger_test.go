// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readLogRecords parses the daily JSON file a logger wrote into dir.
func readLogRecords(t *testing.T, dir, service string) []map[string]any {
	t.Helper()
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.Open(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestNew_WritesDailyJSONFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "ctltest", Quiet: true})

	logger.Info("rule set uploaded", "tenant", "acme", "type", "technical")
	require.NoError(t, logger.Close())

	records := readLogRecords(t, dir, "ctltest")
	require.Len(t, records, 1)
	assert.Equal(t, "rule set uploaded", records[0]["msg"])
	assert.Equal(t, "ctltest", records[0]["service"])
	assert.Equal(t, "acme", records[0]["tenant"])
	assert.Equal(t, "technical", records[0]["type"])
}

func TestNew_LevelFiltersBothDestinations(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelWarn, LogDir: dir, Service: "ctltest", Quiet: true})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("kept as well")
	require.NoError(t, logger.Close())

	records := readLogRecords(t, dir, "ctltest")
	require.Len(t, records, 2)
	assert.Equal(t, "kept", records[0]["msg"])
	assert.Equal(t, "kept as well", records[1]["msg"])
}

func TestNew_AppendsAcrossLoggers(t *testing.T) {
	dir := t.TempDir()

	first := New(Config{Level: LevelInfo, LogDir: dir, Service: "ctltest", Quiet: true})
	first.Info("first run")
	require.NoError(t, first.Close())

	second := New(Config{Level: LevelInfo, LogDir: dir, Service: "ctltest", Quiet: true})
	second.Info("second run")
	require.NoError(t, second.Close())

	records := readLogRecords(t, dir, "ctltest")
	require.Len(t, records, 2)
}

// TestNew_UnwritableDirDegradesToStderr covers the operator-machine failure
// mode: a bad log path must not prevent the tool from running.
func TestNew_UnwritableDirDegradesToStderr(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	logger := New(Config{Level: LevelInfo, LogDir: filepath.Join(blocker, "logs"), Service: "ctltest"})
	logger.Info("still works")
	assert.NoError(t, logger.Close())
}

func TestWith_AttachesFieldsAndSharesFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "ctltest", Quiet: true})

	derived := logger.With("worker", 3)
	derived.Info("document sent")
	require.NoError(t, derived.Close())
	require.NoError(t, logger.Close())

	records := readLogRecords(t, dir, "ctltest")
	require.Len(t, records, 1)
	assert.EqualValues(t, 3, records[0]["worker"])
}

func TestClose_Idempotent(t *testing.T) {
	logger := New(Config{Level: LevelInfo, LogDir: t.TempDir(), Service: "ctltest", Quiet: true})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}

func TestDefault_NoFile(t *testing.T) {
	logger := Default()
	logger.Info("stderr only")
	assert.NoError(t, logger.Close())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		" error ": LevelError,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "level(42)", Level(42).String())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".claimsgate/logs"), expandHome("~/.claimsgate/logs"))
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, "/var/log/claimsgate", expandHome("/var/log/claimsgate"))
	assert.Equal(t, "~weird", expandHome("~weird"))
}
