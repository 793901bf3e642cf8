// Command ecstress exercises the storage engine under concurrent
// create/delete load, then verifies the engine's identity invariants
// after quiescence and compaction.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
