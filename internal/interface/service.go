package service_interface

import (
	"context"

	"github.com/ark-network/ark-wallet-api/internal/config"
	httpservice "github.com/ark-network/ark-wallet-api/internal/interface/http"
)

type Service interface {
	Start() error
	Stop()
}

// NewService connects to the server and returns the HTTP service exposing
// the wallet operations. The config must be validated.
func NewService(ctx context.Context, cfg *config.Config) (Service, error) {
	appSvc, err := cfg.AppService(ctx)
	if err != nil {
		return nil, err
	}

	return httpservice.NewService(httpservice.Config{Port: cfg.Port}, appSvc, cfg.Registry())
}
