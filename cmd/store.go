package main

import (
	"context"

	"github.com/sells-group/firmcrawl/internal/config"
	"github.com/sells-group/firmcrawl/internal/db"
	"github.com/sells-group/firmcrawl/internal/store"
)

func storeConfig(c config.StoreConfig) store.Config {
	sc := store.Config{Driver: c.Driver, DatabaseURL: c.DatabaseURL}
	if c.MaxConns > 0 || c.MinConns > 0 {
		sc.Pool = &db.PoolConfig{MaxConns: c.MaxConns, MinConns: c.MinConns}
	}
	return sc
}

// initStore validates the config for mode, opens the store and applies the
// schema.
func initStore(ctx context.Context, mode string) (store.FirmStore, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, storeConfig(cfg.Store))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
