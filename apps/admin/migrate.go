package main

import (
	"context"
	"database/sql"
)

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	var db *sql.DB
	if cli.openDB != nil {
		var err error
		if db, err = cli.openDB(); err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
	}
	return gooseRunFunc(ctx, db, args[0], args[1:]...)
}
