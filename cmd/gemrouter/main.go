package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lizzyg/gemrouter/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.IO{})
	stop()
	os.Exit(code)
}
