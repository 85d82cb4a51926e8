// Package main is the entry point for the corefish CLI.
package main

import (
	"os"

	"github.com/rivershell/corefish/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
