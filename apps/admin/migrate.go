package main

import (
	"database/sql"

	"github.com/fundisha/backend/storage/database"
)

var migrateRunFunc = func(db *sql.DB, command string, args ...string) error { // mockable
	return database.RunMigrationCommand(db, command, args...)
}

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return migrateRunFunc(cli.db, args[0], arguments...)
}
