package command

// root.go defines the root command for sim-cli and its global flags.

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sdsim/cmd/sim-cli/authentication"
	"sdsim/cmd/sim-cli/command/client"
)

var (
	serverAddr string // Global flag for the sim-server control address
	token      string // controller token (jwt); falls back to the keyring
	timeout    time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sim-cli",
	Short: "sim-cli - controller for sim-server",
	Long: `sim-cli connects to a sim-server as a controller. It can:
- Drive a car with fixed inputs and print its telemetry
- Rebuild the road from a waypoints file
- Reset the car, leave the scene or quit the server
- Step a simulation held in synchronous mode
- Issue and store controller tokens

Use "sim-cli command -h" to see all available commands.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9090", "sim-server control address")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "controller token (default: stored token)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "connect and handshake timeout")
}

// connect dials the server, authenticates when a token is available and
// starts the read loop.
func connect() (*client.Controller, error) {
	c, err := client.Dial(serverAddr, timeout)
	if err != nil {
		return nil, err
	}

	tok := token
	if tok == "" {
		if creds, err := authentication.GetTokens(); err == nil && creds != nil {
			tok = creds.Token
		}
	}
	if tok != "" {
		if err := c.Authenticate(tok, timeout); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.Start()
	return c, nil
}

// connectWithCar connects and waits until the server has given us a car.
func connectWithCar() (*client.Controller, error) {
	c, err := connect()
	if err != nil {
		return nil, err
	}
	if _, err := c.WaitFor("car_loaded", timeout); err != nil {
		c.Close()
		return nil, fmt.Errorf("no car was assigned: %w", err)
	}
	return c, nil
}
