package fan

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Get the current target speeds of a fan",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pterm.DisableOutput()

		_, sources, err := getFanSources(fanId)
		if err != nil {
			return err
		}

		for _, source := range sources {
			if !source.HasTarget() {
				fmt.Printf("%s: N/A\n", source.GetId())
				continue
			}
			target, err := source.GetTarget()
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d\n", source.GetId(), int(target))
		}
		return nil
	},
}

func init() {
	Command.AddCommand(targetCmd)
}
