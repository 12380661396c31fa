package db

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	badgerdb "github.com/ark-network/ark-wallet-api/internal/infrastructure/db/badger"
	inmemorydb "github.com/ark-network/ark-wallet-api/internal/infrastructure/db/inmemory"
	sqlitedb "github.com/ark-network/ark-wallet-api/internal/infrastructure/db/sqlite"
)

var (
	walletStoreTypes = map[string]func(...interface{}) (domain.WalletRepository, error){
		"badger":   badgerdb.NewWalletRepository,
		"sqlite":   sqlitedb.NewWalletRepository,
		"inmemory": inmemorydb.NewWalletRepository,
	}
	settlementStoreTypes = map[string]func(...interface{}) (domain.SettlementRepository, error){
		"badger":   badgerdb.NewSettlementRepository,
		"sqlite":   sqlitedb.NewSettlementRepository,
		"inmemory": inmemorydb.NewSettlementRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

// ServiceConfig selects the store of every repository. Badger stores
// expect a base dir and a logger, sqlite ones only a base dir, empty dirs
// open in-memory stores.
type ServiceConfig struct {
	WalletStoreType     string
	SettlementStoreType string

	WalletStoreConfig     []interface{}
	SettlementStoreConfig []interface{}
}

type service struct {
	walletStore     domain.WalletRepository
	settlementStore domain.SettlementRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	walletStoreFactory, ok := walletStoreTypes[config.WalletStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid wallet store type: %s", config.WalletStoreType)
	}

	settlementStoreFactory, ok := settlementStoreTypes[config.SettlementStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid settlement store type: %s", config.SettlementStoreType)
	}

	// stores of the same sqlite dir share the connection
	sqliteDbs := make(map[string]*sql.DB)

	walletStoreConfig, err := storeConfig(config.WalletStoreType, config.WalletStoreConfig, sqliteDbs)
	if err != nil {
		return nil, err
	}

	settlementStoreConfig, err := storeConfig(
		config.SettlementStoreType, config.SettlementStoreConfig, sqliteDbs,
	)
	if err != nil {
		return nil, err
	}

	walletStore, err := walletStoreFactory(walletStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet store: %w", err)
	}

	settlementStore, err := settlementStoreFactory(settlementStoreConfig...)
	if err != nil {
		walletStore.Close()
		return nil, fmt.Errorf("failed to create settlement store: %w", err)
	}

	return &service{walletStore, settlementStore}, nil
}

func (s *service) Wallets() domain.WalletRepository {
	return s.walletStore
}

func (s *service) Settlements() domain.SettlementRepository {
	return s.settlementStore
}

func (s *service) Close() {
	s.walletStore.Close()
	s.settlementStore.Close()
}

func storeConfig(
	storeType string, config []interface{}, sqliteDbs map[string]*sql.DB,
) ([]interface{}, error) {
	if storeType != "sqlite" {
		return config, nil
	}

	if len(config) != 1 {
		return nil, errors.New("invalid sqlite config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, errors.New("invalid sqlite config, expected base dir at 0")
	}

	if db, ok := sqliteDbs[baseDir]; ok {
		return []interface{}{db}, nil
	}

	dbPath := sqlitedb.InMemoryDb
	if len(baseDir) > 0 {
		dbPath = filepath.Join(baseDir, sqliteDbFile)
	}

	db, err := sqlitedb.OpenDb(dbPath)
	if err != nil {
		return nil, err
	}

	if err := sqlitedb.MigrateDb(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	sqliteDbs[baseDir] = db
	return []interface{}{db}, nil
}
