package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thruflo/bfi/internal/cli"
)

func main() {
	// First interrupt cancels cooperatively; a second one kills the process
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	err := cli.Execute(ctx)
	stop()

	var statusErr *cli.StatusError
	if errors.As(err, &statusErr) {
		os.Exit(statusErr.ExitCode())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
