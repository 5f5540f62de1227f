package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:     "state",
	Short:   "Show the app state",
	GroupID: "state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := walletClient.GetState(context.Background())
		if err != nil {
			return fmt.Errorf("getting state: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), st)
			return nil
		}
		printState(cmd.OutOrStdout(), st)
		return nil
	},
}

var activityCmd = &cobra.Command{
	Use:     "activity",
	Short:   "Record user activity and restart the inactivity timer",
	GroupID: "state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		timer, err := walletClient.RecordActivity(context.Background())
		if err != nil {
			return fmt.Errorf("recording activity: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), timer)
			return nil
		}
		printTimer(cmd.OutOrStdout(), timer)
		return nil
	},
}

var timeoutCmd = &cobra.Command{
	Use:     "timeout <minutes>",
	Short:   "Set the inactivity timeout in minutes (0 disables auto-lock)",
	GroupID: "state",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := walletClient.SetTimeout(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("setting timeout: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), resp)
			return nil
		}
		printTimer(cmd.OutOrStdout(), &resp.Timer)
		return nil
	},
}

var pollCmd = &cobra.Command{
	Use:     "poll",
	Short:   "Manage gas polling tokens",
	GroupID: "state",
}

var pollListCmd = &cobra.Command{
	Use:   "list",
	Short: "List polling tokens by category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := httpClient.ListPollingTokens(context.Background())
		if err != nil {
			return fmt.Errorf("listing polling tokens: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), tokens)
			return nil
		}
		printPollingTokens(cmd.OutOrStdout(), tokens)
		return nil
	},
}

var pollAddCmd = &cobra.Command{
	Use:   "add <environment> [<token>]",
	Short: "Track a polling token (generated when omitted)",
	Long: `Track a polling token under the category of the given environment
(popup, notification, fullscreen or background) or category name.
Tokens from the background environment are accepted but not tracked.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 2 {
			token = args[1]
		}
		resp, err := httpClient.AddPollingToken(context.Background(), token, args[0])
		if err != nil {
			return fmt.Errorf("adding polling token: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), resp)
			return nil
		}
		if !resp.Accepted {
			fmt.Fprintf(cmd.OutOrStdout(), "token %s not tracked for %s\n", resp.Token, args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "token %s added to %s\n", resp.Token, resp.Category)
		return nil
	},
}

var pollRemoveCmd = &cobra.Command{
	Use:   "remove <environment> <token>",
	Short: "Stop tracking a polling token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accepted, err := httpClient.RemovePollingToken(context.Background(), args[1], args[0])
		if err != nil {
			return fmt.Errorf("removing polling token: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]bool{"accepted": accepted})
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "token %s removed\n", args[1])
		return nil
	},
}

var pollClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every polling token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := httpClient.ClearPollingTokens(context.Background()); err != nil {
			return fmt.Errorf("clearing polling tokens: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "polling tokens cleared")
		return nil
	},
}

func init() {
	pollCmd.AddCommand(pollListCmd)
	pollCmd.AddCommand(pollAddCmd)
	pollCmd.AddCommand(pollRemoveCmd)
	pollCmd.AddCommand(pollClearCmd)
}
