// Command pop manages a proof-of-purchase receipt ledger.
package main

import (
	"fmt"
	"os"

	"github.com/bitfsorg/libpop-go/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
