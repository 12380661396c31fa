package main

import (
	"fmt"

	"github.com/ark-network/ark-wallet-api/internal/config"
	"github.com/urfave/cli/v2"
)

var configCmd = &cli.Command{
	Name:   "config",
	Usage:  "Print the effective config, the wallet password is omitted",
	Action: configAction,
}

func configAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	fmt.Println(cfg.String())
	return nil
}
