package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"booking-engine/internal/adapters/cli"
	"booking-engine/internal/bootstrap"
	"booking-engine/internal/config"
	"booking-engine/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	rt, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	err = cli.Run(ctx, rt.Service, cli.Options{
		JWTSecret:   cfg.JWTSecret,
		ActorUserID: os.Getenv("ACTOR_USER_ID"),
	}, os.Args[1:], os.Stdout)
	rt.Close()
	if err != nil {
		if !errors.Is(err, cli.ErrIntegrityViolations) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
