// Command learnerd runs the conversation learning engine and exposes its
// operations from the command line.
package main

import (
	"fmt"
	"os"
)

var (
	version   = "development"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
