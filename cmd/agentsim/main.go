// Package main starts the simulated agent backend and handles termination.
//
// The process is a development stand-in for the remote agent service: it
// serves the session WebSocket endpoint with scripted persona replies so the
// console and integration tests can run against a real peer.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	agentsimcmd "github.com/louisbranch/agentwire/internal/cmd/agentsim"
)

func main() {
	cfg, err := agentsimcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[AGENTSIM] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := agentsimcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
