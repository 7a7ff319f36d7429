package main

import (
	"context"
	"fmt"

	"pointsystem/internal/config"
	"pointsystem/internal/infrastructure/cache"
	"pointsystem/internal/infrastructure/database"
	"pointsystem/internal/repository"
	"pointsystem/internal/repository/memory"
	"pointsystem/internal/repository/postgres"
	redisstore "pointsystem/internal/repository/redis"
	"pointsystem/pkg/idgen"
)

// storage is the backend picked by storage.driver.
type storage struct {
	accounts repository.AccountStore
	history  repository.HistoryStore
	tx       repository.TxManager
	close    func() error
}

func openStorage(ctx context.Context, cfg *config.Config, ids *idgen.Snowflake) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		store := memory.New(ids)
		return &storage{
			accounts: store,
			history:  store,
			tx:       repository.NopTxManager{},
			close:    func() error { return nil },
		}, nil

	case config.StorageMySQL:
		db, err := database.OpenMySQL(cfg.MySQL, cfg.Log.Development)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		return &storage{
			accounts: repository.NewAccountRepository(db),
			history:  repository.NewTransactionRepository(db),
			tx:       repository.NewTransactionManager(db),
			close:    sqlDB.Close,
		}, nil

	case config.StoragePostgres:
		db, err := database.OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return &storage{
			accounts: postgres.NewAccountRepository(db),
			history:  postgres.NewTransactionRepository(db),
			tx:       postgres.NewTxManager(db),
			close:    db.Close,
		}, nil

	case config.StorageRedis:
		client, err := cache.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		store := redisstore.New(client)
		return &storage{
			accounts: store,
			history:  store,
			tx:       repository.NopTxManager{},
			close:    client.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
