package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ryanmccauley/loop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// The run already printed its report.
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
