package main

import (
	"os"

	"github.com/Saiprana/ai-guardrails-system/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
