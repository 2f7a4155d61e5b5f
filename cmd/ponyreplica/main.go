// Command ponyreplica mirrors the game backend's account collections and
// merges duplicate accounts.
package main

import (
	"fmt"
	"os"

	"github.com/drewdru/ponyTown-sub010/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
