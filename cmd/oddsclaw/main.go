// Package main is the entry point for the oddsclaw CLI.
package main

import (
	"os"

	"github.com/OddsClaw/OddsClaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
