package main

import (
	"fmt"
	"os"

	"github.com/calbera/shepherd/internal/cli"
)

func main() {
	// If no args, launch the dashboard; otherwise route to CLI
	if len(os.Args) == 1 {
		if err := cli.RunDashboard(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := cli.Execute(); err != nil {
			os.Exit(1)
		}
	}
}
