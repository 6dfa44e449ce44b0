package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"kitsu2sonarr/internal/util"
)

func main() {
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Printf("%s %v", util.RedBold("!!! FATAL"), err)
		os.Exit(1)
	}
}
