package main

import (
	"os"

	"github.com/digitorus/aissign/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
