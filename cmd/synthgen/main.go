package main

import (
	"log"
	"os"

	"github.com/synthgrove/synthgen/internal/cli"
)

func main() {
	// Logs go to stderr; stdout stays clean for piping documents.
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime)

	cli.Execute()
}
