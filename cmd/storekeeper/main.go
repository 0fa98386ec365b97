// Command storekeeper opens, migrates and queries schema-described
// embedded databases.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/storekeeper/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// ExitErrors were already written in the selected format.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
