package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ark-network/ark-wallet-api/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	datadir := t.TempDir()
	t.Setenv("ARK_WALLET_DATADIR", datadir)
	return datadir
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		datadir := setup(t)

		cfg, err := config.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, datadir, cfg.Datadir)
		require.Equal(t, filepath.Join(datadir, "db"), cfg.DbDir)
		require.Equal(t, uint32(config.DefaultPort), cfg.Port)
		require.Equal(t, "http://localhost:7070", cfg.ArkServerURL)
		require.Equal(t, "badger", cfg.WalletDbType)
		require.Equal(t, "sqlite", cfg.SettlementDbType)
		require.Equal(t, 2*time.Minute, cfg.RoundEventTimeout)
		require.Equal(t, 5*time.Second, cfg.PingInterval)
		require.Zero(t, cfg.RedeemFeeRate)
		require.Empty(t, cfg.WalletPassword)
	})

	t.Run("from env", func(t *testing.T) {
		setup(t)
		t.Setenv("ARK_WALLET_ARK_SERVER_URL", "https://ark.example.com")
		t.Setenv("ARK_WALLET_ROUND_EVENT_TIMEOUT", "30s")
		t.Setenv("ARK_WALLET_PING_INTERVAL", "0")
		t.Setenv("ARK_WALLET_WALLET_PASSWORD", "secret")
		t.Setenv("ARK_WALLET_PORT", "9090")

		cfg, err := config.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, "https://ark.example.com", cfg.ArkServerURL)
		require.Equal(t, 30*time.Second, cfg.RoundEventTimeout)
		require.Zero(t, cfg.PingInterval)
		require.Equal(t, "secret", cfg.WalletPassword)
		require.Equal(t, uint32(9090), cfg.Port)
		require.NotContains(t, cfg.String(), "secret")
	})

	t.Run("from config file", func(t *testing.T) {
		datadir := setup(t)
		t.Setenv("ARK_WALLET_ESPLORA_URL", "http://esplora.local")

		configFile := "ark_server_url = \"http://ark.local:7070\"\n" +
			"esplora_url = \"http://overridden\"\n"
		require.NoError(t, os.WriteFile(
			filepath.Join(datadir, "ark.config.toml"), []byte(configFile), 0600,
		))

		cfg, err := config.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, "http://ark.local:7070", cfg.ArkServerURL)
		require.Equal(t, "http://esplora.local", cfg.EsploraURL)
	})

	t.Run("malformed config file", func(t *testing.T) {
		datadir := setup(t)
		require.NoError(t, os.WriteFile(
			filepath.Join(datadir, "ark.config.toml"), []byte("ark_server_url = "), 0600,
		))

		cfg, err := config.LoadConfig()
		require.Error(t, err)
		require.Nil(t, cfg)
	})
}

func TestValidate(t *testing.T) {
	validConfig := func(t *testing.T) *config.Config {
		return &config.Config{
			Datadir:           t.TempDir(),
			ArkServerURL:      "http://localhost:7070",
			EsploraURL:        "http://localhost:3000",
			WalletDbType:      "inmemory",
			SettlementDbType:  "inmemory",
			WalletPassword:    "password",
			ScryptN:           1 << 10,
			RoundEventTimeout: time.Minute,
			PingInterval:      time.Second,
			LogLevel:          4,
		}
	}

	t.Run("valid", func(t *testing.T) {
		stores := [][2]string{
			{"inmemory", "inmemory"},
			{"badger", "sqlite"},
			{"sqlite", "sqlite"},
		}
		for _, s := range stores {
			t.Run(s[0]+"/"+s[1], func(t *testing.T) {
				cfg := validConfig(t)
				cfg.WalletDbType, cfg.SettlementDbType = s[0], s[1]
				cfg.DbDir = filepath.Join(cfg.Datadir, "db")

				require.NoError(t, cfg.Validate())
				require.NotNil(t, cfg.Registry())
				cfg.Close()
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		testCases := []struct {
			description string
			mutate      func(c *config.Config)
		}{
			{"missing server url", func(c *config.Config) { c.ArkServerURL = "" }},
			{"missing esplora url", func(c *config.Config) { c.EsploraURL = "" }},
			{"invalid esplora url", func(c *config.Config) { c.EsploraURL = "localhost" }},
			{"unknown wallet db", func(c *config.Config) { c.WalletDbType = "postgres" }},
			{"unknown settlement db", func(c *config.Config) { c.SettlementDbType = "redis" }},
			{"missing password", func(c *config.Config) { c.WalletPassword = "" }},
			{"scrypt N not a power of 2", func(c *config.Config) { c.ScryptN = 1000 }},
			{"negative timeout", func(c *config.Config) { c.RoundEventTimeout = -time.Second }},
			{"ping slower than timeout", func(c *config.Config) { c.PingInterval = 2 * time.Minute }},
		}

		for _, tc := range testCases {
			t.Run(tc.description, func(t *testing.T) {
				cfg := validConfig(t)
				tc.mutate(cfg)

				err := cfg.Validate()
				require.Error(t, err)
				cfg.Close()
			})
		}
	})
}
