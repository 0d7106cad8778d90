package command

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sdsim/cmd/sim-cli/command/client"
)

// watchCmd follows telemetry through the UDP relay without taking a car
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print telemetry relayed over UDP",
	Long: `Subscribe to the sim-server UDP relay (RELAY_PORT) and print telemetry
frames until interrupted. Without --session every session is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		relayAddr, _ := cmd.Flags().GetString("relay")
		sessionID, _ := cmd.Flags().GetString("session")
		every, _ := cmd.Flags().GetInt("every")
		if every < 1 {
			every = 1
		}

		w, err := client.Watch(relayAddr, sessionID, timeout)
		if err != nil {
			return err
		}
		defer w.Close()
		go w.KeepAlive(30 * time.Second)

		target := sessionID
		if target == "" {
			target = "all sessions"
		}
		fmt.Printf("✓ Watching %s via %s\n", target, relayAddr)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)

		frames := 0
		for {
			select {
			case <-stop:
				return nil
			case msg, ok := <-w.Frames():
				if !ok {
					return nil
				}
				frames++
				if frames%every != 0 {
					continue
				}
				if id, err := msg.String("session_id"); err == nil && sessionID == "" {
					fmt.Printf("[%s] ", id)
				}
				printTelemetry(client.ParseTelemetry(msg))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("relay", "localhost:9092", "sim-server UDP relay address")
	watchCmd.Flags().String("session", "", "session to follow (default: all)")
	watchCmd.Flags().Int("every", 21, "print every n-th frame")
}
