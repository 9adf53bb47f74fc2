// Command qcircuitd serves the qcircuit HTTP API and runs the simulation
// workers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "qcircuitd:", err)
		os.Exit(1)
	}
}
