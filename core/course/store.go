package course

import (
	"context"
	"time"
)

type (
	// Tx reads and writes records within a single serialized transaction.
	// Getters return ErrRecordNotFound when the record does not exist;
	// creators return ErrRecordExists when the key is taken.
	Tx interface {
		GetAuthority(ctx context.Context) (Authority, error)
		CreateAuthority(ctx context.Context, auth Authority) error

		GetCourse(ctx context.Context, key string) (Course, error)
		QueryCourses(ctx context.Context) ([]Course, error)
		CreateCourse(ctx context.Context, c Course) error
		UpdateCourse(ctx context.Context, c Course) error

		GetLesson(ctx context.Context, key string) (Lesson, error)
		QueryLessons(ctx context.Context, courseKey string) ([]Lesson, error)
		CreateLesson(ctx context.Context, l Lesson) error

		GetAttendance(ctx context.Context, key string) (Attendance, error)
		PutAttendance(ctx context.Context, a Attendance) error

		GetEscrow(ctx context.Context, courseKey string) (Escrow, error)
		PutEscrow(ctx context.Context, e Escrow) error
	}

	Store interface {
		// Atomically runs fn in a read-write transaction, committing only when fn returns nil.
		// The ctx handed to fn must be used for every call made within the transaction.
		Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
		// View runs fn in a read-only transaction.
		View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	}

	// Ledger moves value between accounts.
	Ledger interface {
		// Transfer fails with ErrInsufficientBalance when the source account cannot cover the amount.
		Transfer(ctx context.Context, t Transfer) error
	}

	Transfer struct {
		ID     string    `json:"id"`
		From   string    `json:"from"`
		To     string    `json:"to"`
		Asset  string    `json:"asset"`
		Amount uint64    `json:"amount"`
		Memo   string    `json:"memo"`
		At     time.Time `json:"at"` // UTC
	}

	Clock interface {
		Now() time.Time
	}

	ClockFunc func() time.Time
)

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
