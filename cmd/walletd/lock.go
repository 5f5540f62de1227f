package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/walletd/internal/client"
	"github.com/alfredjeanlab/walletd/internal/ui"
)

var lockCmd = &cobra.Command{
	Use:     "lock",
	Short:   "Lock the wallet",
	GroupID: "lock",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		changed, err := walletClient.Lock(context.Background())
		if err != nil {
			return fmt.Errorf("locking wallet: %w", err)
		}
		printTransition(cmd, false, changed)
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:     "unlock",
	Short:   "Mark the wallet unlocked",
	GroupID: "lock",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		changed, err := walletClient.Unlock(context.Background())
		if err != nil {
			return fmt.Errorf("unlocking wallet: %w", err)
		}
		printTransition(cmd, true, changed)
		return nil
	},
}

func printTransition(cmd *cobra.Command, unlocked, changed bool) {
	out := cmd.OutOrStdout()
	if jsonOutput {
		printJSON(out, map[string]bool{"unlocked": unlocked, "changed": changed})
		return
	}
	if changed {
		fmt.Fprintf(out, "wallet %s\n", ui.RenderLockState(unlocked))
	} else {
		fmt.Fprintf(out, "wallet already %s\n", ui.RenderLockState(unlocked))
	}
}

var waitCmd = &cobra.Command{
	Use:     "wait",
	Short:   "Block until the wallet is unlocked",
	GroupID: "lock",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		showUI, _ := cmd.Flags().GetBool("approval")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := walletClient.WaitForUnlock(ctx, showUI, timeout); err != nil {
			if waitTimedOut(err) {
				return fmt.Errorf("wallet still locked after %s", timeout)
			}
			return fmt.Errorf("waiting for unlock: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]bool{"unlocked": true})
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "wallet %s\n", ui.RenderLockState(true))
		}
		return nil
	},
}

// waitTimedOut reports whether the daemon gave up on an unlock wait, over
// either transport.
func waitTimedOut(err error) bool {
	return client.IsStatus(err, http.StatusRequestTimeout) || status.Code(err) == codes.DeadlineExceeded
}

var approvalsCmd = &cobra.Command{
	Use:     "approvals",
	Short:   "List and resolve pending approval requests",
	GroupID: "lock",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approval requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reqs, err := httpClient.ListApprovals(context.Background())
		if err != nil {
			return fmt.Errorf("listing approvals: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), reqs)
			return nil
		}
		printApprovals(cmd.OutOrStdout(), reqs)
		return nil
	},
}

var approvalsAcceptCmd = &cobra.Command{
	Use:   "accept <id>",
	Short: "Accept an approval request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := httpClient.AcceptApproval(context.Background(), args[0]); err != nil {
			return fmt.Errorf("accepting %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "approval %s accepted\n", args[0])
		return nil
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject an approval request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		if err := httpClient.RejectApproval(context.Background(), args[0], reason); err != nil {
			return fmt.Errorf("rejecting %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "approval %s rejected\n", args[0])
		return nil
	},
}

func init() {
	waitCmd.Flags().Bool("approval", false, "raise the unlock approval UI while waiting")
	waitCmd.Flags().Duration("timeout", 0, "give up after this long (0 waits until interrupted)")

	approvalsRejectCmd.Flags().String("reason", "", "rejection reason")

	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsAcceptCmd)
	approvalsCmd.AddCommand(approvalsRejectCmd)
}
