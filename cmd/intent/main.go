package main

import (
	"os"

	"github.com/wonny/intent/cmd/intent/commands"
)

// main is the entry point for the intent CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/intent [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
