package sensor

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/markusressel/tachmon/internal/ui"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const watchWindowSize = 100

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Draw a live graph of the tach readings of a sensor",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := getSensorSource(sensorId)
		if err != nil {
			return err
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		area, err := pterm.DefaultArea.WithFullscreen().Start()
		if err != nil {
			return err
		}
		defer func() {
			_ = area.Stop()
		}()

		var values []float64
		for {
			select {
			case <-sig:
				return nil
			case <-ticker.C:
				value, err := source.GetInput()
				if err != nil {
					ui.Warning("Unable to read sensor %s: %v", source.GetId(), err)
					continue
				}

				values = append(values, value)
				if len(values) > watchWindowSize {
					values = values[len(values)-watchWindowSize:]
				}

				graph := asciigraph.Plot(values, asciigraph.Height(15), asciigraph.Width(100), asciigraph.Caption(source.GetId()))
				area.Update(graph)
			}
		}
	},
}

func init() {
	Command.AddCommand(watchCmd)
}
