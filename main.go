package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/michaelpento.lv/flasharb/cmd"
	"github.com/michaelpento.lv/flasharb/utils"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	defer utils.CleanupLogger()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
