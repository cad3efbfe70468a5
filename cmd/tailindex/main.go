// Command tailindex is the external CLI collaborator described in spec
// §6: it loads the YAML tail configuration, starts a Line Source per
// tail instruction, runs each line through the matching transform
// pipeline, and hands finished documents to an indexer session.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
