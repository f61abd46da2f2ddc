// The main package for the gazettewatch executable.
package main

import (
	"github.com/JakeFAU/gazette-watcher/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
