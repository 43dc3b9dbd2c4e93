package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophchat/internal/buildinfo"
	"github.com/dmitrijs2005/gophchat/internal/cli"
	"github.com/dmitrijs2005/gophchat/internal/config"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, os.Stderr)

	app, err := cli.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := app.Run(ctx, os.Stdin); err != nil {
		logger.Error(ctx, "client stopped", "error", err)
	}
}
