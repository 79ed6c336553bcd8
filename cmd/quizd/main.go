package main

import (
	"os"

	"github.com/fafmau/quizd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
