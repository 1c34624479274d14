package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/cictl/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(defaultApp())
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("cictl failed")
		stop()
		os.Exit(1)
	}
}
