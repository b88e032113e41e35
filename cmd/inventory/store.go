package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"Inventory/internal/config"
	"Inventory/internal/inventory"
)

// openStore builds the configured backend and prepares it for use. The
// returned close func is always safe to call.
func openStore(ctx context.Context, c config.Config, log *zap.Logger) (inventory.Store, func(), error) {
	switch c.StoreDriver {
	case config.DriverFile, "":
		s := inventory.NewFileStore(c.DataFile, log)
		if err := s.Init(ctx); err != nil {
			return nil, func() {}, err
		}
		log.Info("using file store", zap.String("path", s.Path()))
		return s, func() {}, nil

	case config.DriverPostgres:
		if c.DatabaseURL == "" {
			return nil, func() {}, fmt.Errorf("DATABASE_URL is required for the %s driver", c.StoreDriver)
		}
		db, err := inventory.OpenPostgres(c.DatabaseURL)
		if err != nil {
			return nil, func() {}, err
		}
		s := inventory.NewPostgresStore(db, log)
		if err := s.Init(ctx); err != nil {
			_ = db.Close()
			return nil, func() {}, fmt.Errorf("init postgres store: %w", err)
		}
		log.Info("using postgres store")
		return s, func() { _ = db.Close() }, nil

	case config.DriverMongo:
		s, err := inventory.NewMongoStore(ctx, c.MongoURI, c.MongoDatabase, log)
		if err != nil {
			return nil, func() {}, err
		}
		log.Info("using mongo store", zap.String("database", c.MongoDatabase))
		return s, func() { _ = s.Close(context.Background()) }, nil

	default:
		return nil, func() {}, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
}
