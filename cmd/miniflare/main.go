package main

import (
	"os"

	"github.com/drivly/miniflare/cmd/miniflare/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
