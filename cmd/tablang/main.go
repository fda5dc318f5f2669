// tablang is the TabCalc language server and command line toolkit.
package main

import (
	"os"

	"github.com/tabcalc/tablang/cmd/tablang/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
