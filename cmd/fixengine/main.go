package main

import (
	"os"

	"github.com/solatis/fixengine/cmd/fixengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
