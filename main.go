package main

import (
	"os"

	"github.com/lab1702/ground-control/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
