package logsvc

import (
	"fmt"
	"io"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"

	"github.com/trezcool/dhamana/core"
)

// RollbarLogger reports to Rollbar and mirrors every entry to a logrus sink.
type RollbarLogger struct {
	std *logrus.Logger
}

var _ core.Logger = (*RollbarLogger)(nil) // interface compliance check

// NewStdLogger returns the logrus sink used by RollbarLogger; JSON formatted outside of debug.
func NewStdLogger(out io.Writer, conf *core.Config) *logrus.Logger {
	std := logrus.New()
	std.SetOutput(out)
	if conf.Debug {
		std.SetLevel(logrus.DebugLevel)
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		std.SetLevel(logrus.InfoLevel)
		std.SetFormatter(&logrus.JSONFormatter{})
	}
	return std
}

func NewRollbarLogger(std *logrus.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(!conf.Debug && conf.RollbarToken != "")
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// prepare splits args into the rollbar arguments and the logrus fields.
// expected fmt: msg | error, map[string]interface{}, core.Caller
func (l RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, logrus.Fields) {
	var callerSet bool
	fields := make(logrus.Fields)
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case core.Caller:
			if !callerSet { // only set one caller
				rollbar.SetPerson(string(a), string(a), "")
				fields["caller"] = string(a)
				callerSet = true
			}
		case error:
			fields[logrus.ErrorKey] = a
			rbArgs = append(rbArgs, a)
		case map[string]interface{}:
			for k, v := range a {
				fields[k] = v
			}
			rbArgs = append(rbArgs, a)
		default:
			fields[fmt.Sprintf("arg%d", len(rbArgs))] = a
			rbArgs = append(rbArgs, a)
		}
	}
	if !callerSet {
		rollbar.ClearPerson()
	}
	return rbArgs, fields
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.std.WithFields(fields).Debug(msg)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.std.WithFields(fields).Info(msg)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.std.WithFields(fields).Warn(msg)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.std.WithFields(fields).Error(msg)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	rollbar.Wait()
	l.std.WithFields(fields).Fatal(msg)
}
