package main

import (
	"os"

	"github.com/pgconvo/pgconvo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
}
