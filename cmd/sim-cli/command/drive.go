package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sdsim/cmd/sim-cli/command/client"
)

// driveCmd represents the drive command
var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Drive the car with fixed inputs",
	Long:  `Send the same control inputs at a fixed rate and print a telemetry line every --every frames.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		steering, _ := cmd.Flags().GetFloat64("steering")
		throttle, _ := cmd.Flags().GetFloat64("throttle")
		brake, _ := cmd.Flags().GetFloat64("brake")
		duration, _ := cmd.Flags().GetDuration("duration")
		rate, _ := cmd.Flags().GetFloat64("rate")
		every, _ := cmd.Flags().GetInt("every")

		if rate <= 0 {
			return fmt.Errorf("--rate must be positive")
		}
		if every <= 0 {
			every = 1
		}

		c, err := connectWithCar()
		if err != nil {
			return err
		}
		defer c.Close()
		fmt.Printf("✓ Car loaded on %s\n", serverAddr)

		ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
		defer ticker.Stop()
		stop := time.After(duration)

		frames := 0
		for {
			select {
			case <-stop:
				printStats(c.GetStats())
				return nil
			case <-ticker.C:
				if err := c.Control(steering, throttle, brake); err != nil {
					return fmt.Errorf("control failed: %w", err)
				}
			case msg, ok := <-c.Messages():
				if !ok {
					printStats(c.GetStats())
					return fmt.Errorf("server closed the connection")
				}
				if msg.Type != "telemetry" {
					continue
				}
				frames++
				if frames%every == 0 {
					printTelemetry(client.ParseTelemetry(msg))
				}
			}
		}
	},
}

func printTelemetry(t client.Telemetry) {
	line := fmt.Sprintf("lap=%d sector=%d/%d cte=%+.3f speed=%.2f steer=%+.2f throttle=%.2f",
		t.Lap, t.Sector, t.MaxSector, t.CTE, t.Speed, t.Steering, t.Throttle)
	if t.Done {
		line += " done"
	}
	if t.Hit != "" && t.Hit != "none" {
		line += " hit=" + t.Hit
	}
	fmt.Println(line)
}

func printStats(s client.Stats) {
	fmt.Printf("sent=%d received=%d telemetry=%d dropped=%d uptime=%s\n",
		s.MessagesSent, s.MessagesReceived, s.Telemetry, s.Dropped, s.Uptime.Round(time.Millisecond))
}

func init() {
	rootCmd.AddCommand(driveCmd)
	driveCmd.Flags().Float64("steering", 0, "steering input in [-1, 1]")
	driveCmd.Flags().Float64("throttle", 0.3, "throttle input in [-1, 1]")
	driveCmd.Flags().Float64("brake", 0, "brake input in [0, 1]")
	driveCmd.Flags().Duration("duration", 10*time.Second, "how long to drive")
	driveCmd.Flags().Float64("rate", 20, "control messages per second")
	driveCmd.Flags().Int("every", 21, "print every n-th telemetry frame")
}
