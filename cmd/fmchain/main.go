// Command fmchain samples a ferromagnetic chain on a quantum annealer, or on
// the built-in simulated annealer, and prints the returned sample set.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
