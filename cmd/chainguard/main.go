// Command chainguard runs the simulated blockchain firewall dashboard.
package main

import (
	"fmt"
	"os"

	"chainguard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
