// The main package for the chordsheet-resolver executable.
package main

import (
	"github.com/JakeFAU/chordsheet-resolver/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
