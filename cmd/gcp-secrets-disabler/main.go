package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", dserrors.Stage(err), err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}
