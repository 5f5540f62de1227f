package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/walletd/internal/client"
	"github.com/alfredjeanlab/walletd/internal/ui"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	authToken  string
	jsonOutput bool

	walletClient client.WalletClient
	// httpClient backs the commands that only the HTTP API serves. It is
	// set for both transports.
	httpClient *client.HTTPClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("WALLETD_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("WALLETD_SERVER"); s != "" {
		return s
	}
	if a := activeRemoteGRPCAddr(); a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("WALLETD_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:           "walletd <command>",
	Short:         "Wallet app-state daemon and its control CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		httpClient = client.NewHTTPClient(httpURL, authToken)
		switch transport {
		case "http":
			walletClient = httpClient
		case "grpc":
			c, err := client.NewGRPCClient(serverAddr, authToken)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			walletClient = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if walletClient != nil {
			walletClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for authentication")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "lock", Title: "Lock:"},
		&cobra.Group{ID: "state", Title: "App state:"},
		&cobra.Group{ID: "bridge", Title: "Bridge:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Lock
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(waitCmd)
	rootCmd.AddCommand(approvalsCmd)

	// App state
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(timeoutCmd)
	rootCmd.AddCommand(pollCmd)

	// Bridge
	rootCmd.AddCommand(bridgeCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	ui.Init()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderWarn("Error: ")+err.Error())
		os.Exit(1)
	}
}
