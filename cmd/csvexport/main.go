// Package main is the entry point for the csvexport CLI binary.
package main

import (
	"os"

	cli "duck-export/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
