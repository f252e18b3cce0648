package main

import (
	"os"

	"speedliner/cmd/quote/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
