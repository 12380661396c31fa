package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ark-network/ark-wallet-api/internal/core/application"
	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	grpcclient "github.com/ark-network/ark-wallet-api/internal/infrastructure/ark-client/grpc"
	"github.com/ark-network/ark-wallet-api/internal/infrastructure/db"
	"github.com/ark-network/ark-wallet-api/internal/infrastructure/explorer"
	"github.com/ark-network/ark-wallet-api/internal/infrastructure/faucet"
	"github.com/ark-network/ark-wallet-api/internal/infrastructure/metrics"
	"github.com/ark-network/ark-wallet-api/internal/infrastructure/wallet/singlekey"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "ARK_WALLET"
	configFileName = "ark.config"
	configFileType = "toml"
)

var (
	supportedDbs = supportedType{
		"badger":   {},
		"sqlite":   {},
		"inmemory": {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

	ArkServerURL  string
	EsploraURL    string
	NigiriCommand string

	WalletDbType     string
	SettlementDbType string
	DbDir            string

	WalletPassword string `json:"-"`
	ScryptN        int

	RoundEventTimeout time.Duration
	PingInterval      time.Duration
	RedeemFeeRate     uint64

	repo     ports.RepoManager
	client   ports.TransportClient
	explorer ports.Explorer
	faucet   ports.Faucet
	keys     ports.KeyManager
	registry *prometheus.Registry
	metrics  ports.RoundMetrics
	svc      application.Service
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir           = "DATADIR"
	Port              = "PORT"
	LogLevel          = "LOG_LEVEL"
	ArkServerURL      = "ARK_SERVER_URL"
	EsploraURL        = "ESPLORA_URL"
	NigiriCommand     = "NIGIRI_COMMAND"
	WalletDbType      = "WALLET_DB_TYPE"
	SettlementDbType  = "SETTLEMENT_DB_TYPE"
	WalletPassword    = "WALLET_PASSWORD"
	ScryptN           = "SCRYPT_N"
	RoundEventTimeout = "ROUND_EVENT_TIMEOUT"
	PingInterval      = "PING_INTERVAL"
	RedeemFeeRate     = "REDEEM_FEE_RATE"

	defaultDatadir           = btcutil.AppDataDir("arkwalletd", false)
	DefaultPort              = 8080
	defaultLogLevel          = 4
	defaultArkServerURL      = "http://localhost:7070"
	defaultEsploraURL        = "http://localhost:3000"
	defaultNigiriCommand     = faucet.DefaultCommand
	defaultWalletDbType      = "badger"
	defaultSettlementDbType  = "sqlite"
	defaultScryptN           = 1 << 15
	defaultRoundEventTimeout = 2 * time.Minute
	defaultPingInterval      = 5 * time.Second
	defaultRedeemFeeRate     = 0
)

// LoadConfig reads the config from the environment and, if present, from
// the ark.config.toml file in the datadir. Env vars take precedence.
func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(ArkServerURL, defaultArkServerURL)
	viper.SetDefault(EsploraURL, defaultEsploraURL)
	viper.SetDefault(NigiriCommand, defaultNigiriCommand)
	viper.SetDefault(WalletDbType, defaultWalletDbType)
	viper.SetDefault(SettlementDbType, defaultSettlementDbType)
	viper.SetDefault(ScryptN, defaultScryptN)
	viper.SetDefault(RoundEventTimeout, defaultRoundEventTimeout)
	viper.SetDefault(PingInterval, defaultPingInterval)
	viper.SetDefault(RedeemFeeRate, defaultRedeemFeeRate)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	datadir := viper.GetString(Datadir)
	viper.SetConfigName(configFileName)
	viper.SetConfigType(configFileType)
	viper.AddConfigPath(datadir)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error while reading config file: %s", err)
		}
	}

	return &Config{
		Datadir:           datadir,
		Port:              viper.GetUint32(Port),
		LogLevel:          viper.GetInt(LogLevel),
		ArkServerURL:      viper.GetString(ArkServerURL),
		EsploraURL:        viper.GetString(EsploraURL),
		NigiriCommand:     viper.GetString(NigiriCommand),
		WalletDbType:      viper.GetString(WalletDbType),
		SettlementDbType:  viper.GetString(SettlementDbType),
		DbDir:             filepath.Join(datadir, "db"),
		WalletPassword:    viper.GetString(WalletPassword),
		ScryptN:           viper.GetInt(ScryptN),
		RoundEventTimeout: viper.GetDuration(RoundEventTimeout),
		PingInterval:      viper.GetDuration(PingInterval),
		RedeemFeeRate:     viper.GetUint64(RedeemFeeRate),
	}, nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// Validate checks the config and creates the services the app depends on.
// The app service is created by AppService since it needs the server.
func (c *Config) Validate() error {
	if len(c.ArkServerURL) <= 0 {
		return fmt.Errorf("missing ark server url")
	}
	if len(c.EsploraURL) <= 0 {
		return fmt.Errorf("missing esplora url")
	}
	if !supportedDbs.supports(c.WalletDbType) {
		return fmt.Errorf("wallet db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedDbs.supports(c.SettlementDbType) {
		return fmt.Errorf("settlement db type not supported, please select one of: %s", supportedDbs)
	}
	if len(c.WalletPassword) <= 0 {
		return fmt.Errorf("missing wallet password")
	}
	if c.ScryptN < 2 || c.ScryptN&(c.ScryptN-1) != 0 {
		return fmt.Errorf("invalid scrypt N, must be a power of 2 greater than 1")
	}
	if c.RoundEventTimeout < 0 {
		return fmt.Errorf("invalid round event timeout, must not be negative")
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("invalid ping interval, must not be negative")
	}
	if c.RoundEventTimeout > 0 && c.PingInterval >= c.RoundEventTimeout {
		return fmt.Errorf("invalid ping interval, must be lower than the round event timeout")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.transportClient(); err != nil {
		return err
	}
	if err := c.explorerService(); err != nil {
		return err
	}
	if err := c.keyManager(); err != nil {
		return err
	}
	c.faucetService()
	c.metricsService()
	return nil
}

// AppService connects to the server and returns the wallet service.
func (c *Config) AppService(ctx context.Context) (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(ctx); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

// Close releases the services created by Validate.
func (c *Config) Close() {
	if c.svc != nil {
		c.svc.Close()
		return
	}
	if c.client != nil {
		c.client.Close()
	}
	if c.repo != nil {
		c.repo.Close()
	}
}

// Registry is where the app metrics are registered.
func (c *Config) Registry() prometheus.Gatherer {
	if c.registry == nil {
		return nil
	}
	return c.registry
}

func (c *Config) repoManager() error {
	logger := log.New()
	logger.SetLevel(log.Level(c.LogLevel))

	storeConfig := func(dbType string) []interface{} {
		switch dbType {
		case "badger":
			return []interface{}{c.DbDir, logger}
		case "sqlite":
			return []interface{}{c.DbDir}
		default:
			return nil
		}
	}

	if c.WalletDbType != "inmemory" || c.SettlementDbType != "inmemory" {
		if err := makeDirectoryIfNotExists(c.DbDir); err != nil {
			return err
		}
	}

	svc, err := db.NewService(db.ServiceConfig{
		WalletStoreType:       c.WalletDbType,
		SettlementStoreType:   c.SettlementDbType,
		WalletStoreConfig:     storeConfig(c.WalletDbType),
		SettlementStoreConfig: storeConfig(c.SettlementDbType),
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) transportClient() error {
	client, err := grpcclient.NewClient(c.ArkServerURL)
	if err != nil {
		return err
	}

	c.client = client
	return nil
}

func (c *Config) explorerService() error {
	svc, err := explorer.NewExplorer(c.EsploraURL)
	if err != nil {
		return err
	}

	c.explorer = svc
	return nil
}

func (c *Config) keyManager() error {
	keys, err := singlekey.NewKeyManager(c.WalletPassword, c.ScryptN)
	if err != nil {
		return err
	}

	c.keys = keys
	return nil
}

func (c *Config) faucetService() {
	c.faucet = faucet.NewNigiriFaucet(c.NigiriCommand)
}

func (c *Config) metricsService() {
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.metrics = metrics.NewRoundMetrics(c.registry)
}

func (c *Config) appService(ctx context.Context) error {
	if c.repo == nil || c.client == nil {
		return fmt.Errorf("config not validated")
	}

	svc, err := application.NewService(
		ctx,
		application.ServiceConfig{
			Round: application.RoundConfig{
				EventTimeout: c.RoundEventTimeout,
				PingInterval: c.PingInterval,
			},
			RedeemFeeRate: chainfee.SatPerKVByte(c.RedeemFeeRate),
		},
		c.repo, c.client, c.explorer, c.faucet, c.keys, c.metrics,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
