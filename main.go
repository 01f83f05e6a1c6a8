package main

import (
	"os"

	"github.com/crowsnest-systems/crowsnest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
