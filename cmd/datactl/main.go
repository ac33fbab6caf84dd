// Package main is the entrypoint for the datactl command-line tool.
package main

import (
	"os"

	"github.com/coremodel/coremodel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
