package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/homework-lens/backend/internal/app"
	"github.com/homework-lens/backend/internal/config"
	"github.com/homework-lens/backend/internal/logging"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	cfg, err := config.Load(config.ResolvePath(""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries JSON output only; logs go to stderr when asked for.
	var logOut io.Writer = io.Discard
	if os.Getenv("HOMEWORKCTL_DEBUG") != "" {
		logOut = os.Stderr
	}
	logger := logging.New(logOut, cfg.Advanced.LogLevel, cfg.Advanced.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	components, err := app.New(ctx, cfg, logger, app.WithTrustedCaller())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		os.Exit(1)
	}

	if err := newCLIApp(components).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
