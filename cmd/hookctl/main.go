package main

import (
	"os"

	"github.com/brunov7/formerr-hooks/cmd/hookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
