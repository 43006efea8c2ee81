package main

import (
	"github.com/trezcool/dhamana/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	if len(args) == 0 {
		return errHelp
	}
	return migrateFunc(cli.db, args[0], args[1:]...)
}
