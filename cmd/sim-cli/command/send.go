package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"sdsim/internal/microservices/tcp"
)

// one-shot commands that need no arguments
var simpleCommands = []struct {
	use, short, msgType string
	needsCar            bool
}{
	{"reset", "Put the car back at the start", "reset_car", true},
	{"exit-scene", "Leave the road scene for the menu", "exit_scene", true},
	{"new-car", "Spawn an extra car nobody controls", "new_car", true},
	{"quit", "Ask the server to quit", "quit_app", false},
}

func init() {
	for _, sc := range simpleCommands {
		rootCmd.AddCommand(&cobra.Command{
			Use:   sc.use,
			Short: sc.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				connectFn := connect
				if sc.needsCar {
					connectFn = connectWithCar
				}
				c, err := connectFn()
				if err != nil {
					return err
				}
				defer c.Close()

				if err := c.Send(tcp.NewMessage(sc.msgType)); err != nil {
					return fmt.Errorf("%s failed: %w", sc.msgType, err)
				}
				fmt.Printf("✓ %s sent\n", sc.msgType)
				return nil
			},
		})
	}
}
