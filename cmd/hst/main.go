package main

import (
	"os"

	"fxHistory/cmd/hst/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
