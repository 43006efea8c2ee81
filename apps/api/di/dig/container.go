package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/dhamana/apps/api/echo"
	"github.com/trezcool/dhamana/core"
	"github.com/trezcool/dhamana/core/course"
	emailsvc "github.com/trezcool/dhamana/services/email"
	ledgersvc "github.com/trezcool/dhamana/services/ledger"
	logsvc "github.com/trezcool/dhamana/services/logger"
	"github.com/trezcool/dhamana/storage/database"
	inmemdb "github.com/trezcool/dhamana/storage/database/inmem"
	sqlxdb "github.com/trezcool/dhamana/storage/database/sqlx"
)

const (
	StoreSQL   = "sql"
	StoreInMem = "inmem"

	dbSetupTimeout = 30 * time.Second
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Closer releases the resources held by the record store.
type Closer func() error

type Backend struct {
	dig.Out
	Store  course.Store
	Ledger course.Ledger
	Closer Closer
}

type ServerParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	CourseSvc  *course.Service
	Validate   *validator.Validate
	Translator ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger(os.Stdout, conf), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	std := logsvc.NewStdLogger(os.Stdout, conf)
	std.SetReportCaller(true)
	return logsvc.NewRollbarLogger(std, conf)
}

func newBackend(conf *core.Config, loggerParam DBLoggerParam) Backend {
	switch conf.Store {
	case StoreInMem:
		return Backend{
			Store:  inmemdb.NewDB(),
			Ledger: ledgersvc.New(ledgersvc.WithOpenAccounts(ledgersvc.EscrowOnly)),
			Closer: func() error { return nil },
		}
	case StoreSQL, "":
	default:
		loggerParam.Logger.Fatal(fmt.Sprintf("unknown store %q", conf.Store))
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Backend{
		Store:  sqlxdb.NewStore(db),
		Ledger: sqlxdb.NewLedger(db),
		Closer: db.Close,
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newClock() course.Clock {
	return course.SystemClock
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		CourseSvc:  p.CourseSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newBackend))
	must(c.Provide(newEmailService))
	must(c.Provide(course.NewMailNotifier, dig.As(new(course.Notifier))))
	must(c.Provide(newClock))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(course.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
