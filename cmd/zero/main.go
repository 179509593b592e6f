package main

import (
	"os"

	"github.com/zerotrading/zero/cmd/zero/commands"
)

// main is the entry point for the zero CLI
// ⭐ SSOT: single binary for every service: go run ./cmd/zero [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
