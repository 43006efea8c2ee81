package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	dig_container "github.com/trezcool/dhamana/apps/api/di/dig"
	echoapi "github.com/trezcool/dhamana/apps/api/echo"
	"github.com/trezcool/dhamana/core"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		closeStore dig_container.Closer,
		validate *validator.Validate,
		translator ut.Translator,
		server *echoapi.Server,
	) {
		apiLogger.Info(fmt.Sprintf("escrow API %s starting", conf.Build), map[string]interface{}{"store": conf.Store, "env": conf.Env})

		core.InitValidators(validate, translator)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := closeStore(); err != nil {
				dbLogger.Fatal(fmt.Sprintf("closing %s store: %v", conf.Store, err), err)
			}
		}()
		defer apiLogger.Info("escrow API stopped")

		// debug listener: /debug/pprof via net/http/pprof, /debug/vars via expvar
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("store").Set(conf.Store)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug listener on %s stopped: %v", conf.Server.DebugHost, err), err)
			}
		}()

		go server.Start()

		select {
		case err := <-server.Errors():
			apiLogger.Error(fmt.Sprintf("escrow API failed: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("received %v, draining requests", sig))

			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("drain did not finish within %v: %v", conf.Server.ShutdownTimeout, err), err)

				if err = server.Close(); err != nil {
					apiLogger.Error(fmt.Sprintf("closing listener: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
