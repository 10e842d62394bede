package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/repository"
	"github.com/iliyamo/task-manager/internal/repository/memory"
	mongostore "github.com/iliyamo/task-manager/internal/repository/mongo"
	mysqlstore "github.com/iliyamo/task-manager/internal/repository/mysql"
)

// OpenStore connects the backend selected by cfg.StoreDriver and prepares
// its indexes or tables.
func OpenStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := OpenMongo(ctx, cfg.MongoURI)
		if err != nil {
			return repository.Store{}, fmt.Errorf("connect mongo: %w", err)
		}
		db := client.Database(cfg.MongoDB)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return repository.Store{}, err
		}
		log.Info("store ready", slog.String("driver", cfg.StoreDriver), slog.String("database", cfg.MongoDB))
		return mongostore.NewStore(client, db), nil

	case config.DriverMySQL:
		db, err := OpenMySQL(ctx, cfg.MySQL.DSN())
		if err != nil {
			return repository.Store{}, fmt.Errorf("connect mysql: %w", err)
		}
		if err := mysqlstore.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return repository.Store{}, err
		}
		log.Info("store ready", slog.String("driver", cfg.StoreDriver), slog.String("database", cfg.MySQL.Name))
		return mysqlstore.NewStore(db), nil

	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	}
	return repository.Store{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
