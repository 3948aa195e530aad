// Entrypoint delegating to the Cobra root command in cmd/root.go.

package main

import (
	"github.com/render-sim/render-sim/cmd"
)

func main() {
	cmd.Execute()
}
