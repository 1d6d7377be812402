package main

import (
	"log/slog"
	"os"

	"github.com/kamilk/go-radar-driver/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, logging.ParseLevel(level), os.Stderr).With("app", "radar-logger")
	logging.Set(l)
	return l
}
