// myst - a minimal consumer node: control API, CLI and local tunnel relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tebeka/atexit"

	"gomyst/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "myst: %v\n", err)
		cancel()
		atexit.Exit(1)
	}
	cancel()
	atexit.Exit(0)
}
