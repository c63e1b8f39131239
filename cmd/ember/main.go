package main

import (
	"os"

	"github.com/emberlaunch/ember/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
