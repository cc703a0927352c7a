// Command rbh is the command-line entry point for the policy engine:
// scan, policy run/status, report and mount.
package main

import (
	"fmt"
	"os"

	"github.com/robinhood-fs/rbh/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
