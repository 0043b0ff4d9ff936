// Command planstate captures, loads and inspects plan state documents.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/planstate/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
