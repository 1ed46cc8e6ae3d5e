package main

import (
	"os"

	"github.com/MEKXH/autorecord/cmd/autorecord/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
