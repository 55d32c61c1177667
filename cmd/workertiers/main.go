// Command workertiers trains and exports the worker performance tier model.
package main

import (
	"os"

	"github.com/Iron-Ham/workertiers/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
