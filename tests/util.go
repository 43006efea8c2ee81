package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/dhamana/core"
	"github.com/trezcool/dhamana/core/course"
	"github.com/trezcool/dhamana/services/ledger"
	"github.com/trezcool/dhamana/storage/database/inmem"
)

// Clock is a settable course.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

var _ course.Clock = (*Clock)(nil) // interface compliance check

func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log entries instead of printing them.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil) // interface compliance check

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	panic(fmt.Sprintf("fatal: %s %v", msg, args))
}

// Notifier records course events.
type Notifier struct {
	mu     sync.Mutex
	events []course.Event
}

var _ course.Notifier = (*Notifier)(nil) // interface compliance check

func (n *Notifier) Notify(_ context.Context, ev course.Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *Notifier) Events() []course.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]course.Event(nil), n.events...)
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	return validate, translator
}

// Env bundles a course Service backed by in-memory collaborators.
type Env struct {
	Svc        *course.Service
	Store      *inmemdb.DB
	Ledger     *ledgersvc.Ledger
	Clock      *Clock
	Notifier   *Notifier
	Logger     *Logger
	Validate   *validator.Validate
	Translator ut.Translator
}

// NewEnv builds a Service whose participant wallets are open ledger accounts.
func NewEnv(t *testing.T, now time.Time) *Env {
	env := &Env{
		Store:    inmemdb.NewDB(),
		Ledger:   ledgersvc.New(ledgersvc.WithOpenAccounts(ledgersvc.EscrowOnly)),
		Clock:    NewClock(now),
		Notifier: &Notifier{},
		Logger:   &Logger{},
	}
	env.Validate, env.Translator = NewValidator()
	svc, err := course.NewService(env.Store, env.Ledger, env.Clock, env.Validate, env.Notifier, env.Logger)
	if err != nil {
		t.Fatalf("NewEnv(): %v", err)
	}
	env.Svc = svc
	return env
}

// CreateCourse initializes the Authority when needed and creates a course managed by manager.
func (env *Env) CreateCourse(t *testing.T, manager string, nc course.NewCourse) course.Course {
	ctx := context.Background()
	if _, err := env.Svc.GetAuthority(ctx); err != nil {
		if _, err = env.Svc.Initialize(ctx, course.NewAuthority{Admin: "admin", Manager: manager}); err != nil {
			t.Fatalf("Initialize(): %v", err)
		}
	}
	c, err := env.Svc.CreateCourse(ctx, manager, nc)
	if err != nil {
		t.Fatalf("CreateCourse(): %v", err)
	}
	return c
}
