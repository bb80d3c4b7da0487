package main

import (
	"os"

	"github.com/lorekeeper/chronicle/cmd/chronicle"
)

func main() {
	if err := chronicle.Execute(); err != nil {
		os.Exit(1)
	}
}
