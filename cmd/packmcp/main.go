// Package main provides the entry point for the packmcp CLI.
package main

import (
	"os"

	"github.com/packmcp/packmcp/cmd/packmcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
