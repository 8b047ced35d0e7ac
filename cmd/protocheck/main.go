package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/solatis/protocheck/cmd/protocheck/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrFindings) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
