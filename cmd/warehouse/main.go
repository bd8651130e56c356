// Package main is the entry point for the warehouse CLI binary.
package main

import (
	"os"

	cli "duck-warehouse/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
