// Command mailmerge fills Word templates with spreadsheet rows, either as a
// web service or as a one-off command.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err == nil {
		slog.Debug("loaded .env file")
	}

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
