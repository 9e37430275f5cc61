package main

import (
	"os"

	"github.com/bryanwahyu/civic-triage/cmd/jobctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
