// Package main provides the entry point for the txindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/txindex/cmd/txindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
