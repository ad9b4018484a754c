package main

import (
	"fmt"
	"os"

	"github.com/boddenberg/charter-leads-bfa/internal/capture/cli"
	"github.com/boddenberg/charter-leads-bfa/internal/config"
)

var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	if err := cli.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
