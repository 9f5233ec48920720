package main

import (
	"log/slog"
	"os"

	"github.com/cecad-imaging/omerowatch/cmd/omerowatch/commands"
)

func main() {
	// Text logger on stdout until the root command applies log settings
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
