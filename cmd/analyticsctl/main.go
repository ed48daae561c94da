// Command analyticsctl operates the analytics worker queue and report cache.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		slog.Default().Error("analyticsctl", slog.Any("error", err))
		os.Exit(1)
	}
}
