// Package main is the entry point for the tgcircle application.
package main

import (
	"os"

	"github.com/tgcircle/tgcircle/cmd/tgcircle/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
