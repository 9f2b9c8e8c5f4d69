// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// jackpotsim drives a two-chain jackpot deployment in process and inspects
// the threshold and distribution math.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/jackpot/config"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "jackpotsim",
		Short: "Simulate the cross-chain swap jackpot",
		Long: `jackpotsim deploys the home and compute chains in memory, feeds swaps
through the trigger and relays randomness between the chains.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML or JSON config file (defaults apply when empty)")
	rootCmd.AddCommand(simulateCmd, thresholdCmd, splitCmd)
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
