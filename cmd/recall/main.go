// Command recall is the CLI entry point for the recall document store.
package main

import (
	"os"

	"github.com/custodia-labs/recall/internal/adapters/driving/cli"
)

func main() {
	os.Exit(cli.Execute())
}
