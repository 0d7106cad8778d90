package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"sdsim/cmd/sim-cli/authentication"
	"sdsim/cmd/sim-cli/command/client"
)

// stepCmd paces a simulation that a controller switched to synchronous mode
var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Advance a paused simulation",
	Long: `Call POST /sim/step on the admin API. Each call runs one tick of the
time_step the controller sent with step_mode synchronous.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		adminURL, _ := cmd.Flags().GetString("admin")
		count, _ := cmd.Flags().GetInt("count")

		tok := token
		if tok == "" {
			if creds, err := authentication.GetTokens(); err == nil && creds != nil {
				tok = creds.Token
			}
		}

		for i := 0; i < count; i++ {
			step, err := client.StepSim(adminURL, tok, timeout)
			if err != nil {
				return err
			}
			fmt.Printf("step %d: +%gs, sim time %.3fs\n", i+1, step.TimeStep, step.SimTime)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stepCmd)

	stepCmd.Flags().String("admin", "http://localhost:8080", "admin API base URL")
	stepCmd.Flags().Int("count", 1, "number of ticks")
}
