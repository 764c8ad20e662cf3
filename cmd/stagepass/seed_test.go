// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/stagepass/pkg/errutil"
)

func TestSeed_Properties(t *testing.T) {
	cmd := NewSeedCmd()

	assert.Equal(t, "seed", cmd.Use)
	assert.Contains(t, cmd.Long, "idempotent")
}

func TestSeed_Flags(t *testing.T) {
	cmd := NewSeedCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, flag := range []string{"--password", "--timeout"} {
		assert.Contains(t, output, flag, "Help missing %q flag", flag)
	}
}

func TestSeed_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"seed", "--password", "seedpass"})

	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestSeed_RequiresPassword(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/stagepass")
	t.Setenv("ADMIN_PASSWORD", "")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"seed"})

	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestSeed_RejectsShortPassword(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/stagepass")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"seed", "--password", "short"})

	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, "SEED_FAILED")
}
