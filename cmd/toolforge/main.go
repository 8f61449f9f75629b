package main

import (
	"errors"
	"os"

	"github.com/petal-labs/toolforge/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	cli.Version = version
	if err := cli.NewRootCmd().Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
