// The main package for the placecrawl executable.
package main

import (
	"github.com/openplace/placecrawl/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
