package main

import (
	"os"

	"github.com/revlab-dev/revpanel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
