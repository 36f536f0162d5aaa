package fan

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var rpmCmd = &cobra.Command{
	Use:   "rpm",
	Short: "Get the current RPM readings of a fan",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pterm.DisableOutput()

		_, sources, err := getFanSources(fanId)
		if err != nil {
			return err
		}

		for _, source := range sources {
			input, err := source.GetInput()
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d\n", source.GetId(), int(input))
		}
		return nil
	},
}

func init() {
	Command.AddCommand(rpmCmd)
}
