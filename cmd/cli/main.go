// Package main is the entry point for the basekit CLI binary.
package main

import (
	"os"

	cli "basekit/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
