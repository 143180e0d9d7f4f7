package main

import (
	"os"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
