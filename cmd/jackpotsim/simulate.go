// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/luxfi/jackpot/fpmath"
	"github.com/luxfi/jackpot/jackpot"
	"github.com/luxfi/jackpot/omnichain"
)

var (
	rounds     int
	users      int
	swapTokens uint64
	fundTokens uint64
	entropy    string

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run swaps through a full deployment",
		RunE:  runSimulate,
	}
)

func init() {
	simulateCmd.Flags().IntVar(&rounds, "rounds", 100, "number of swaps")
	simulateCmd.Flags().IntVar(&users, "users", 10, "distinct swappers, rotated round robin")
	simulateCmd.Flags().Uint64Var(&swapTokens, "amount", 100, "tokens per swap")
	simulateCmd.Flags().Uint64Var(&fundTokens, "fund", 10_000, "initial pool deposit in tokens")
	simulateCmd.Flags().StringVar(&entropy, "entropy", "0x01", "coordinator entropy")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	if users <= 0 {
		return fmt.Errorf("users must be positive, got %d", users)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := omnichain.Deploy(cfg, omnichain.Options{
		Logger:     log.NewTestLogger(log.InfoLevel),
		Registerer: prometheus.NewRegistry(),
		Entropy:    common.HexToHash(entropy),
	})
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if fundTokens > 0 {
		if err := d.Fund(ctx, omnichain.DeriveAddress("treasury"), fpmath.Wad(fundTokens)); err != nil {
			return fmt.Errorf("fund pool: %w", err)
		}
	}

	amount := fpmath.Wad(swapTokens)
	for i := 0; i < rounds; i++ {
		user := omnichain.DeriveAddress(fmt.Sprintf("user-%d", i%users))
		res, err := d.Round(ctx, user, amount)
		if errors.Is(err, omnichain.ErrIgnored) {
			continue
		}
		if err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}
		if !res.Won {
			continue
		}
		fmt.Fprintf(out, "round %d: %s won (roll %d < %d), paid %.4f tokens to %d recipients\n",
			i, res.User.Hex(), res.Roll, res.Threshold, jackpot.Tokens(res.Paid), len(res.Payouts))
		if res.Halted {
			fmt.Fprintf(out, "round %d: distribution halted, payout pending\n", i)
		}
	}

	stats := d.Trigger.Stats()
	fmt.Fprintf(out, "swaps %d, ignored %d, wins %d, losses %d\n", stats.Swaps, stats.Ignored, stats.Wins, stats.Losses)
	fmt.Fprintf(out, "paid %.4f tokens, pool %.4f tokens\n", jackpot.Tokens(stats.TotalPaid), jackpot.Tokens(d.Vault.Balance()))
	return nil
}
