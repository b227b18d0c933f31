package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pschroen/multiuser-balls/internal/app"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := telemetry.WrapLogger(log.Default())
	cfg := app.LoadConfig(logger)
	cfg.Logger = logger

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
