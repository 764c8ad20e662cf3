// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/stagepass/pkg/errutil"
)

func TestServe_Properties(t *testing.T) {
	cmd := NewServeCmd()

	assert.Equal(t, "serve", cmd.Use)
	assert.Contains(t, cmd.Long, "registration")
}

func TestServe_Flags(t *testing.T) {
	cmd := NewServeCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	flags := []string{"--database.url", "--api.addr", "--metrics.addr", "--log.format", "--log.level"}
	for _, flag := range flags {
		assert.Contains(t, output, flag, "Help missing %q flag", flag)
	}
}

func TestServe_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configFile = ""

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"serve"})

	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestServe_RejectsBadConfigFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/stagepass")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("surprise: true\n"), 0o600))
	configFile = ""

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"serve", "--config", path})

	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}
