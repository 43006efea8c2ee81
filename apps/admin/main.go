package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/dhamana/core"
	"github.com/trezcool/dhamana/core/course"
	logsvc "github.com/trezcool/dhamana/services/logger"
	"github.com/trezcool/dhamana/storage/database"
	sqlxdb "github.com/trezcool/dhamana/storage/database/sqlx"
)

var logger core.Logger

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(logsvc.NewStdLogger(os.Stderr, conf), conf)

	// set up DB
	db, err := database.Open(context.Background(), conf)
	errAndDie(err)
	defer db.Close()

	// set up services
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	svc, err := course.NewService(sqlxdb.NewStore(db), sqlxdb.NewLedger(db), course.SystemClock, validate, nil, logger)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		conf: conf,
		db:   db.DB,
		svc:  svc,
		out:  os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
