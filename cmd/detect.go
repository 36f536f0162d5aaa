package cmd

import (
	"bytes"
	"strconv"

	"github.com/markusressel/tachmon/cmd/global"
	"github.com/markusressel/tachmon/internal/hwmon"
	"github.com/markusressel/tachmon/internal/ui"
	"github.com/markusressel/tachmon/internal/util"
	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect devices",
	Long:  `Detects all tachometer channels and prints them as a list`,
	Run: func(cmd *cobra.Command, args []string) {
		controllers := hwmon.GetChips()

		// === Print detected devices ===
		tableConfig := &table.Config{
			ShowIndex:       false,
			Color:           !global.NoColor,
			AlternateColors: true,
			TitleColorCode:  ansi.ColorCode("white+buf"),
			AltColorCodes: []string{
				ansi.ColorCode("white"),
				ansi.ColorCode("white:236"),
			},
		}

		for _, controller := range controllers {
			if len(controller.Name) <= 0 {
				continue
			}
			if len(controller.Fans) <= 0 {
				continue
			}

			ui.Printfln("> %s (%s)", controller.Name, controller.Platform)

			var fanRows [][]string
			for _, channel := range controller.Fans {
				rpmText := "N/A"
				rpm, err := util.ReadIntFromFile(channel.RpmInput)
				if err == nil {
					rpmText = strconv.Itoa(rpm)
				}

				targetText := "N/A"
				target, err := util.ReadIntFromFile(channel.RpmTarget)
				if err == nil {
					targetText = strconv.Itoa(target)
				}

				fanRows = append(fanRows, []string{
					"", strconv.Itoa(channel.Index), channel.Label, rpmText, targetText,
				})
			}
			var fanHeaders = []string{"Fans   ", "Index", "Label", "RPM", "Target"}

			fanTable := table.Table{
				Headers: fanHeaders,
				Rows:    fanRows,
			}

			var buf bytes.Buffer
			if err := fanTable.WriteTable(&buf, tableConfig); err != nil {
				ui.Fatal("Error printing table: %v", err)
			}
			ui.Printfln(buf.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
