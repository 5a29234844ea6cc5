// Command buildhub builds and runs the targets described in buildhub.yaml.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/buildhub/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()

	// Commands report their own failures; only flag and argument errors
	// from cobra reach here unprinted.
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "buildhub:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
