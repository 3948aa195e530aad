package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/render-sim/render-sim/render/scenedesc"
)

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "List the built-in scenes",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range scenedesc.BuiltinNames() {
			spec, _ := scenedesc.Builtin(name)
			fmt.Printf("%-12s %dx%d, %d surfaces, %d instances\n",
				name, spec.Film.Width, spec.Film.Height, len(spec.Surfaces), len(spec.Instances))
		}
	},
}

func init() {
	rootCmd.AddCommand(scenesCmd)
}
