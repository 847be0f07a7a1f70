package main

import (
	"os"

	"github.com/psantana5/callguard/cmd/callguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
