// Command calai is the entry point for the calendar RAG assistant.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// query pipeline as a JSON API.
package main

import (
	"fmt"
	"os"

	"github.com/calai/calai-go/cmd/calai/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
