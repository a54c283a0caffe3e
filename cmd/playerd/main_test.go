// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/playerd/internal/config"
	"github.com/ManuGH/playerd/internal/engine"
	"github.com/ManuGH/playerd/internal/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")
	out, err := execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")

	bad := writeConfig(t, "log:\n  colour: red\n")
	_, err = execute(t, "config", "validate", "-c", bad)
	assert.ErrorIs(t, err, config.ErrUnknownConfigField)
}

func TestConfigDump(t *testing.T) {
	path := writeConfig(t, "redis:\n  addr: localhost:6379\n  password: hunter2\n")

	out, err := execute(t, "config", "dump", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "addr: localhost:6379")
	assert.NotContains(t, out, "hunter2")

	out, err = execute(t, "config", "dump", "--config", path, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Addr": "localhost:6379"`)

	_, err = execute(t, "config", "dump", "--config", path, "--format", "toml")
	assert.ErrorIs(t, err, config.ErrUnsupportedFormat)
}

func TestJournalVerifyAndList(t *testing.T) {
	journal := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()
	j, err := engine.OpenJournal(ctx, journal)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, engine.JournalEntry{
		PID: 4321, SessionKey: "abc", MediaType: engine.MediaVideo, StartedAt: time.Now(),
	}))
	require.NoError(t, j.Close())

	path := writeConfig(t, "engine:\n  journalPath: "+journal+"\n")

	out, err := execute(t, "journal", "verify", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "journal ok (quick)")

	out, err = execute(t, "journal", "verify", "--full", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "journal ok (full)")

	out, err = execute(t, "journal", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "4321")
	assert.Contains(t, out, "video")
}

func TestJournalVerify_Missing(t *testing.T) {
	path := writeConfig(t, "engine:\n  journalPath: "+filepath.Join(t.TempDir(), "nope.db")+"\n")
	_, err := execute(t, "journal", "verify", "--config", path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
