package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kilobridge/kilobridge/internal/logging"
)

var version = "dev"

func main() {
	logging.Setup(os.Stderr)

	if len(os.Args) < 2 {
		// No subcommand: serve with defaults.
		if err := runServe(os.Args[1:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "index":
		if err := runIndex(os.Args[2:], os.Stdout); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		// If the first arg starts with '-', treat as serve flags.
		if len(os.Args[1]) > 0 && os.Args[1][0] == '-' {
			if err := runServe(os.Args[1:]); err != nil {
				slog.Error("fatal", "error", err)
				os.Exit(1)
			}
			return
		}
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "usage: kilobridge [serve|index|version] [flags]\n")
		os.Exit(1)
	}
}
