package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ark-network/ark-wallet-api/internal/config"
	service_interface "github.com/ark-network/ark-wallet-api/internal/interface"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const connectTimeout = 30 * time.Second

func main() {
	app := cli.NewApp()

	app.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	app.Name = "arkwalletd"
	app.Usage = "HTTP wallet service settling funds through an Ark server"
	app.Action = startAction
	app.Commands = append(app.Commands, configCmd)

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func startAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		cfg.Close()
		return fmt.Errorf("invalid config: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	svc, err := service_interface.NewService(ctx, cfg)
	if err != nil {
		cfg.Close()
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}
