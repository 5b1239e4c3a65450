package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/resquego/resque/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.New(ctx)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
