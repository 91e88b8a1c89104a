package main

import (
	"os"

	"github.com/YuminosukeSato/titanic-survival/cmd/titanic/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
