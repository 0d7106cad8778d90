package command

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sdsim/internal/track"
)

// regenCmd represents the regen command
var regenCmd = &cobra.Command{
	Use:   "regen",
	Short: "Rebuild the road",
	Long: `Send regen_road. With --file the road is rebuilt through the waypoints in the
file (one "x,y,z" per line, as sim-server exports to LatestWaypoints.txt);
without it the car is only sent back to the start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		turnInc, _ := cmd.Flags().GetFloat64("turn-inc")

		var waypoints []string
		if file != "" {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open waypoints file: %w", err)
			}
			waypoints, err = track.ReadWaypoints(f)
			f.Close()
			if err != nil {
				return err
			}
			if _, err := track.ParseWaypoints(waypoints); err != nil {
				return err
			}
		}

		c, err := connectWithCar()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.RegenRoad(waypoints, turnInc); err != nil {
			return fmt.Errorf("regen_road failed: %w", err)
		}
		fmt.Printf("✓ regen_road sent (%d waypoints)\n", len(waypoints))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regenCmd)
	regenCmd.Flags().String("file", "", "waypoints file")
	regenCmd.Flags().Float64("turn-inc", 0, "turn increment for generated roads")
}
