package main

import (
	"context"
	"fmt"

	"collabwiki/config"
	"collabwiki/store"
	"collabwiki/store/boltstore"
	"collabwiki/store/pgstore"
	"collabwiki/store/sqlitestore"
)

func openStore(ctx context.Context, c config.Store) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch c.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverPostgres:
		var pg *pgstore.Store
		if pg, err = pgstore.New(ctx, c.DSN); err == nil {
			s = pg
		}
	case config.DriverSqlite:
		var lite *sqlitestore.Store
		if lite, err = sqlitestore.New(c.DSN); err == nil {
			s = lite
		}
	case config.DriverBolt:
		var bs *boltstore.Store
		if bs, err = boltstore.New(c.DSN); err == nil {
			s = bs
		}
	default:
		err = fmt.Errorf("unknown store driver %q", c.Driver)
	}
	return s, err
}
