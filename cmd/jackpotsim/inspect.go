// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/luxfi/jackpot/distributor"
	"github.com/luxfi/jackpot/fpmath"
	"github.com/luxfi/jackpot/jackpot"
	"github.com/luxfi/jackpot/oracle"
	"github.com/luxfi/jackpot/probability"
)

var (
	amountTokens  uint64
	priceCents    uint64
	multiplierBps uint64

	balanceTokens uint64
	participants  uint64

	thresholdCmd = &cobra.Command{
		Use:   "threshold",
		Short: "Print the win threshold of a swap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			params := cfg.ThresholdParams()
			price := cfg.TokenPrice()
			if cmd.Flags().Changed("price-cents") {
				price = fpmath.Bps(priceCents * 100)
			}
			value := oracle.ValueOf(fpmath.Wad(amountTokens), price)
			base := probability.Base(params, value)
			boosted := probability.Apply(params, base, fpmath.Bps(multiplierBps))
			fmt.Fprintf(cmd.OutOrStdout(), "value $%.2f, base %d ppm, boosted %d ppm (%.4f%%)\n",
				jackpot.Tokens(value), base, boosted, float64(boosted)/1e4)
			return nil
		},
	}

	splitCmd = &cobra.Command{
		Use:   "split",
		Short: "Print how a pool balance would be distributed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s := distributor.Compute(cfg.DistributionParams(), fpmath.Wad(balanceTokens), participants)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "distributable %.4f, retained %.4f\n", jackpot.Tokens(s.Distributable), jackpot.Tokens(s.Retained))
			fmt.Fprintf(out, "main %.4f (%.2f%%)\n", jackpot.Tokens(s.Main), share(s.Shares.Main))
			fmt.Fprintf(out, "secondary %.4f (%.2f%%)\n", jackpot.Tokens(s.Secondary), share(s.Shares.Secondary))
			fmt.Fprintf(out, "participation %.4f (%.2f%%)\n", jackpot.Tokens(s.Participation), share(s.Shares.Participation))
			return nil
		},
	}
)

func init() {
	thresholdCmd.Flags().Uint64Var(&amountTokens, "amount", 10, "swap amount in tokens")
	thresholdCmd.Flags().Uint64Var(&priceCents, "price-cents", 100, "token price in cents, overriding the config")
	thresholdCmd.Flags().Uint64Var(&multiplierBps, "multiplier-bps", 10_000, "boost multiplier in basis points")

	splitCmd.Flags().Uint64Var(&balanceTokens, "balance", 100_000, "pool balance in tokens")
	splitCmd.Flags().Uint64Var(&participants, "participants", 1, "distinct swappers in the cycle")
}

// share renders a WAD fraction as a percentage.
func share(wad *uint256.Int) float64 {
	return jackpot.Tokens(wad) * 100
}
