// Command thinker runs, records and replays thinker scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/thinker/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
