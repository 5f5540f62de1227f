package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/walletd/internal/model"
	"github.com/alfredjeanlab/walletd/internal/ui"
	"github.com/spf13/cobra"
)

var bridgeCmd = &cobra.Command{
	Use:     "bridge",
	Short:   "Track cross-chain bridge transactions",
	GroupID: "bridge",
}

var bridgeWatchCmd = &cobra.Command{
	Use:   "watch <src-tx-hash>",
	Short: "Start watching a bridge transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := model.StatusRequest{SrcTxHash: args[0]}
		req.BridgeID, _ = cmd.Flags().GetString("bridge-id")
		req.Bridge, _ = cmd.Flags().GetString("bridge")
		req.SrcChainID, _ = cmd.Flags().GetInt64("src-chain")
		req.DestChainID, _ = cmd.Flags().GetInt64("dest-chain")
		req.QuoteID, _ = cmd.Flags().GetString("quote-id")
		req.Refuel, _ = cmd.Flags().GetBool("refuel")

		if err := httpClient.WatchBridgeTx(context.Background(), req); err != nil {
			return fmt.Errorf("watching %s: %w", req.SrcTxHash, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", req.SrcTxHash)
		return nil
	},
}

var bridgeStatusCmd = &cobra.Command{
	Use:   "status [<src-tx-hash>]",
	Short: "Show bridge statuses (all, or one transaction)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			st, err := httpClient.BridgeStatus(ctx, args[0])
			if err != nil {
				return fmt.Errorf("getting status of %s: %w", args[0], err)
			}
			if jsonOutput {
				printJSON(out, st)
				return nil
			}
			printBridgeStatuses(out, map[string]model.StatusResponse{args[0]: *st})
			return nil
		}

		statuses, err := httpClient.BridgeStatuses(ctx)
		if err != nil {
			return fmt.Errorf("listing bridge statuses: %w", err)
		}
		if jsonOutput {
			printJSON(out, statuses)
			return nil
		}
		printBridgeStatuses(out, statuses)
		return nil
	},
}

var bridgeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every bridge status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := httpClient.ResetBridgeStatuses(context.Background()); err != nil {
			return fmt.Errorf("resetting bridge statuses: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "bridge statuses reset")
		return nil
	},
}

var bridgeConfirmCmd = &cobra.Command{
	Use:   "confirm <tx-hash>",
	Short: "Report a confirmed transaction, refreshing its bridge status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tx := model.TransactionMeta{Hash: args[0], Status: "confirmed"}
		tx.ID, _ = cmd.Flags().GetString("id")
		tx.ChainID, _ = cmd.Flags().GetString("chain-id")

		if err := httpClient.ConfirmTransaction(context.Background(), tx); err != nil {
			return fmt.Errorf("confirming %s: %w", tx.Hash, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "transaction %s %s\n", tx.Hash, ui.RenderAccent("confirmed"))
		return nil
	},
}

func init() {
	bridgeWatchCmd.Flags().String("bridge-id", "", "aggregator bridge id (required)")
	bridgeWatchCmd.Flags().String("bridge", "", "bridge name")
	bridgeWatchCmd.Flags().Int64("src-chain", 0, "source chain id (required)")
	bridgeWatchCmd.Flags().Int64("dest-chain", 0, "destination chain id (required)")
	bridgeWatchCmd.Flags().String("quote-id", "", "quote request id")
	bridgeWatchCmd.Flags().Bool("refuel", false, "the quote included a refuel")

	bridgeConfirmCmd.Flags().String("id", "", "wallet transaction id")
	bridgeConfirmCmd.Flags().String("chain-id", "", "chain id (hex or decimal)")

	bridgeCmd.AddCommand(bridgeWatchCmd)
	bridgeCmd.AddCommand(bridgeStatusCmd)
	bridgeCmd.AddCommand(bridgeResetCmd)
	bridgeCmd.AddCommand(bridgeConfirmCmd)
}
