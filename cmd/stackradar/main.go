package main

import (
	"os"

	"github.com/rushi053/stackradar/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
