package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/roffe/goxl/cmd/xltool/cmd"
)

const shutdownGrace = 45 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go watchInterrupt(sig, cancel, shutdownGrace, log.Fatalf)
	cmd.Execute(ctx)
}

// watchInterrupt cancels the command context on the first signal and calls
// fatal if the commands have not returned within grace.
func watchInterrupt(sig <-chan os.Signal, cancel context.CancelFunc, grace time.Duration, fatal func(format string, v ...interface{})) {
	s := <-sig
	log.Printf("got %v, shutting down", s)
	cancel()
	<-time.After(grace)
	fatal("shutdown took longer than %s, exiting", grace)
}
