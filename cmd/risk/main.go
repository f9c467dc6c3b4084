package main

import (
	"os"

	"github.com/wonny/riskcore/cmd/risk/commands"
)

// main is the entry point for the riskcore CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/risk [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
