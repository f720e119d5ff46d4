package main

import (
	"os"

	"github.com/harun/bounter/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
