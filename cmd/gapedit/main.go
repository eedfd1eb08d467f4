package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/kobzarvs/gapedit/internal/app"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if err := app.New(args).Run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "gapedit:", err)
		os.Exit(1)
	}
}
