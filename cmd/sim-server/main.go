package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	hostFlag      string
	portFlag      int
	adminPortFlag int
	relayPortFlag int
	profileFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "sim-server",
	Short: "sim-server - simulation control protocol server",
	Long: `sim-server runs the headless driving simulator and accepts controller
connections on a TCP port. Each controller gets a car, drives it with
control messages and receives telemetry frames back.

Settings come from the environment (and a .env file); flags override them.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().StringVar(&hostFlag, "host", "", "listen host (overrides SIM_HOST)")
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "listen port (overrides SIM_PORT)")
	rootCmd.Flags().IntVar(&adminPortFlag, "admin-port", 0, "admin API port, 0 disables (overrides ADMIN_PORT)")
	rootCmd.Flags().IntVar(&relayPortFlag, "relay-port", 0, "UDP telemetry relay port, 0 disables (overrides RELAY_PORT)")
	rootCmd.Flags().StringVar(&profileFlag, "config", "", "vehicle/track profile YAML (overrides PROFILE_PATH)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
