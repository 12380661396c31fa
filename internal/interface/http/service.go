package httpservice

import (
	"context"
	"net/http"
	"time"

	"github.com/ark-network/ark-wallet-api/internal/core/application"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type service struct {
	*gin.Engine
	config Config
	appSvc application.Service
	server *http.Server
}

// NewService exposes the wallet operations over HTTP, along with the
// metrics collected by gatherer.
func NewService(
	config Config, appSvc application.Service, gatherer prometheus.Gatherer,
) (*service, error) {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	svc := &service{
		Engine: router,
		config: config,
		appSvc: appSvc,
	}

	svc.POST("/create_wallet", svc.createWallet)
	svc.GET("/get_address/:wallet_id", svc.getAddress)
	svc.GET("/get_balance/:wallet_id", svc.getBalance)
	svc.POST("/send_to_ark_address", svc.sendToArkAddress)
	svc.POST("/settle", svc.settle)
	svc.POST("/faucet", svc.faucet)
	svc.GET("/history/:wallet_id", svc.getHistory)
	svc.GET("/info", svc.getInfo)
	if gatherer != nil {
		svc.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return svc, nil
}

func (s *service) Start() error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:              s.config.address(),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()
	log.Infof("started listening at %s", s.config.address())

	return nil
}

func (s *service) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to shutdown http server")
		}
		log.Info("stopped http server")
	}

	s.appSvc.Close()
	log.Info("stopped app service")
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("handled request")
	}
}
