// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestThresholdCommand(t *testing.T) {
	out := run(t, "threshold", "--amount", "10", "--multiplier-bps", "25000")
	require.Contains(t, out, "base 40 ppm")
	require.Contains(t, out, "boosted 100 ppm")
}

func TestSplitCommand(t *testing.T) {
	out := run(t, "split", "--balance", "100000", "--participants", "1")
	require.Contains(t, out, "distributable 69000.0000, retained 31000.0000")
}

func TestSimulateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yml")
	require.NoError(t, os.WriteFile(path, []byte("trigger:\n  minSwapTokens: 50\n"), 0o600))

	out := run(t, "--config", path, "simulate", "--rounds", "6", "--users", "2", "--amount", "100", "--fund", "100")
	require.Contains(t, out, "swaps 6, ignored 0")
	configPath = ""
}
