package course

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/dhamana/core"
)

// Role is a position held in the Authority record.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

type Service struct {
	store    Store
	ledger   Ledger
	clock    Clock
	validate *validator.Validate
	notifier Notifier
	logger   core.Logger
}

// NewService builds the course Service. clock defaults to SystemClock and notifier to a no-op.
func NewService(store Store, ledger Ledger, clock Clock, validate *validator.Validate, notifier Notifier, logger core.Logger) (*Service, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(ledger, "ledger"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		return nil, errors.Wrap(err, "creating course service")
	}

	if clock == nil {
		clock = SystemClock
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		clock:    clock,
		validate: validate,
		notifier: notifier,
		logger:   logger,
	}, nil
}

func (svc *Service) now() time.Time {
	return svc.clock.Now().UTC()
}

// notFound maps ErrRecordNotFound to errNotFound and wraps any other error.
func notFound(err error, errNotFound error, msg string) error {
	if errors.Is(err, ErrRecordNotFound) {
		return errNotFound
	}
	return errors.Wrap(err, msg)
}

func (svc *Service) getCourse(ctx context.Context, tx Tx, title string) (Course, error) {
	c, err := tx.GetCourse(ctx, CourseKey(core.CleanString(title)))
	if err != nil {
		return Course{}, notFound(err, ErrCourseNotFound, "getting course")
	}
	return c, nil
}

func authorize(auth Authority, caller string, role Role) error {
	var holder string
	switch role {
	case RoleAdmin:
		holder = auth.Admin
	case RoleManager:
		holder = auth.Manager
	}
	if caller == "" || caller != holder {
		return ErrUnauthorized
	}
	return nil
}

// Initialize records the Authority. It can only succeed once.
func (svc *Service) Initialize(ctx context.Context, na NewAuthority) (Authority, error) {
	if err := na.Validate(svc.validate); err != nil {
		return Authority{}, err
	}

	auth := Authority{Admin: na.Admin, Manager: na.Manager}
	err := svc.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAuthority(ctx); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, ErrRecordNotFound) {
			return errors.Wrap(err, "getting authority")
		}

		auth.CreatedAt = svc.now()
		if err := tx.CreateAuthority(ctx, auth); err != nil {
			if errors.Is(err, ErrRecordExists) {
				return ErrAlreadyInitialized
			}
			return errors.Wrap(err, "creating authority")
		}
		return nil
	})
	if err != nil {
		return Authority{}, err
	}

	svc.logger.Info("authority initialized", core.Caller(auth.Admin), map[string]interface{}{"manager": auth.Manager})
	return auth, nil
}

// Authorize fails with ErrUnauthorized unless caller holds role in the Authority.
func (svc *Service) Authorize(ctx context.Context, caller string, role Role) error {
	return svc.store.View(ctx, func(ctx context.Context, tx Tx) error {
		auth, err := tx.GetAuthority(ctx)
		if err != nil {
			return notFound(err, ErrAuthorityNotFound, "getting authority")
		}
		return authorize(auth, caller, role)
	})
}

func (svc *Service) CreateCourse(ctx context.Context, caller string, nc NewCourse) (Course, error) {
	var c Course
	err := svc.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		auth, err := tx.GetAuthority(ctx)
		if err != nil {
			return notFound(err, ErrAuthorityNotFound, "getting authority")
		}
		if err = authorize(auth, caller, RoleManager); err != nil {
			return err
		}
		if err = nc.Validate(svc.validate); err != nil {
			return err
		}

		key := CourseKey(nc.Title)
		if _, err = tx.GetCourse(ctx, key); err == nil {
			return ErrCourseExists
		} else if !errors.Is(err, ErrRecordNotFound) {
			return errors.Wrap(err, "checking course uniqueness")
		}

		asset := nc.Asset
		if asset == "" {
			asset = DefaultAsset
		}
		c = Course{
			Key:            key,
			Title:          nc.Title,
			Manager:        caller,
			Asset:          asset,
			DepositAmount:  nc.DepositAmount,
			LockUntil:      nc.LockUntil.UTC(),
			MaxLessonCount: uint8(nc.MaxLessonCount),
			Students:       []string{},
			EscrowAccount:  EscrowAccount(key),
			CreatedAt:      svc.now(),
		}
		if err = tx.CreateCourse(ctx, c); err != nil {
			if errors.Is(err, ErrRecordExists) {
				return ErrCourseExists
			}
			return errors.Wrap(err, "creating course")
		}

		escrow := Escrow{CourseKey: key, Account: c.EscrowAccount, Asset: asset}
		return errors.Wrap(tx.PutEscrow(ctx, escrow), "creating escrow")
	})
	if err != nil {
		return Course{}, err
	}

	svc.logger.Info("course created", core.Caller(caller), map[string]interface{}{"title": c.Title})
	return c, nil
}

// RegisterParticipant enrolls participant in the course, moving amount into the course escrow.
func (svc *Service) RegisterParticipant(ctx context.Context, title, participant string, amount uint64) (Course, error) {
	var c Course
	err := svc.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if c, err = svc.getCourse(ctx, tx, title); err != nil {
			return err
		}
		if !c.RegistrationOpen() {
			return ErrRegistrationClosed
		}
		if participant == "" {
			return ErrUnauthorized
		}
		if c.IsEnrolled(participant) {
			return ErrAlreadyEnrolled
		}
		if amount != c.DepositAmount {
			return ErrInsufficientDeposit
		}

		escrow, err := tx.GetEscrow(ctx, c.Key)
		if err != nil {
			return notFound(err, ErrEscrowNotFound, "getting escrow")
		}
		if amount > MaxEscrowBalance || escrow.Balance > MaxEscrowBalance-amount {
			return ErrEscrowFull
		}
		escrow.Balance += amount
		if err = tx.PutEscrow(ctx, escrow); err != nil {
			return errors.Wrap(err, "crediting escrow")
		}

		c.Students = append(c.Students, participant)
		if err = tx.UpdateCourse(ctx, c); err != nil {
			return errors.Wrap(err, "enrolling participant")
		}

		return svc.transfer(ctx, Transfer{
			From:   participant,
			To:     escrow.Account,
			Asset:  escrow.Asset,
			Amount: amount,
			Memo:   "deposit: " + c.Title,
		})
	})
	if err != nil {
		return Course{}, err
	}

	svc.logger.Info("participant registered", core.Caller(participant), map[string]interface{}{"title": c.Title})
	return c, nil
}

// CreateLesson schedules the next lesson of the course.
func (svc *Service) CreateLesson(ctx context.Context, caller, title string, seq int, deadline time.Time) (Lesson, error) {
	var (
		c Course
		l Lesson
	)
	err := svc.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if c, err = svc.getCourse(ctx, tx, title); err != nil {
			return err
		}
		if caller == "" || caller != c.Manager {
			return ErrUnauthorized
		}

		next := int(c.LastLessonID) + 1
		if seq != next {
			return ErrLessonOutOfOrder
		}
		if next > int(c.MaxLessonCount) {
			return ErrLessonLimit
		}

		l = Lesson{
			Key:                LessonKey(c.Key, uint8(next)),
			CourseKey:          c.Key,
			SequenceNumber:     uint8(next),
			AttendanceDeadline: deadline.UTC(),
		}
		if err = tx.CreateLesson(ctx, l); err != nil {
			return errors.Wrap(err, "creating lesson")
		}

		c.LastLessonID = uint8(next)
		return errors.Wrap(tx.UpdateCourse(ctx, c), "updating last lesson")
	})
	if err != nil {
		return Lesson{}, err
	}

	if c.ScheduleComplete() {
		svc.notifier.Notify(ctx, Event{Type: EventScheduleCompleted, Course: c, At: svc.now()})
	}
	return l, nil
}

// MarkAttendance records that participant attended lesson seq before its deadline.
func (svc *Service) MarkAttendance(ctx context.Context, title string, seq int, participant string) (Attendance, error) {
	var a Attendance
	err := svc.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		courseKey := CourseKey(core.CleanString(title))
		if seq < 1 || seq > math.MaxUint8 {
			return ErrLessonNotFound
		}
		l, err := tx.GetLesson(ctx, LessonKey(courseKey, uint8(seq)))
		if err != nil {
			return notFound(err, ErrLessonNotFound, "getting lesson")
		}

		c, err := tx.GetCourse(ctx, courseKey)
		if err != nil {
			return notFound(err, ErrCourseNotFound, "getting course")
		}
		if !c.IsEnrolled(participant) {
			return ErrNotEnrolled
		}

		key := AttendanceKey(courseKey, participant)
		a, err = tx.GetAttendance(ctx, key)
		if errors.Is(err, ErrRecordNotFound) {
			a = Attendance{Key: key, CourseKey: courseKey, Participant: participant, Attended: Seqs{}}
		} else if err != nil {
			return errors.Wrap(err, "getting attendance")
		}
		if a.Attended.Contains(l.SequenceNumber) {
			return ErrAlreadyMarked
		}

		if svc.now().After(l.AttendanceDeadline) {
			return ErrLate
		}

		a.Attended = append(a.Attended, l.SequenceNumber)
		return errors.Wrap(tx.PutAttendance(ctx, a), "saving attendance")
	})
	if err != nil {
		return Attendance{}, err
	}
	return a, nil
}

// Withdraw returns the deposit to a participant who attended every lesson, once the lock period is over.
func (svc *Service) Withdraw(ctx context.Context, title, participant string) (Attendance, error) {
	var (
		c Course
		a Attendance
	)
	err := svc.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if c, err = svc.getCourse(ctx, tx, title); err != nil {
			return err
		}
		if !c.ScheduleComplete() {
			return ErrScheduleIncomplete
		}

		a, err = tx.GetAttendance(ctx, AttendanceKey(c.Key, participant))
		if err != nil {
			return notFound(err, ErrAttendanceNotFound, "getting attendance")
		}
		if a.Withdrawn() {
			return ErrAlreadyWithdrawn
		}
		if len(a.Attended) != int(c.MaxLessonCount) {
			return ErrAttendanceIncomplete
		}

		now := svc.now()
		if now.Before(c.LockUntil) {
			return ErrNotReadyForWithdrawal
		}

		escrow, err := tx.GetEscrow(ctx, c.Key)
		if err != nil {
			return notFound(err, ErrEscrowNotFound, "getting escrow")
		}
		if escrow.Balance < c.DepositAmount {
			return core.NewIntegrityError("withdraw", fmt.Sprintf("escrow %s holds %d, below the %d deposit owed", escrow.Account, escrow.Balance, c.DepositAmount))
		}
		escrow.Balance -= c.DepositAmount
		if err = tx.PutEscrow(ctx, escrow); err != nil {
			return errors.Wrap(err, "debiting escrow")
		}

		a.WithdrawnAt = &now
		if err = tx.PutAttendance(ctx, a); err != nil {
			return errors.Wrap(err, "saving attendance")
		}

		err = svc.transfer(ctx, Transfer{
			From:   escrow.Account,
			To:     participant,
			Asset:  escrow.Asset,
			Amount: c.DepositAmount,
			Memo:   "withdrawal: " + c.Title,
		})
		if errors.Is(err, ErrInsufficientBalance) {
			// the escrow record covers the deposit, so the ledger disagrees with it
			return core.NewIntegrityError("withdraw", fmt.Sprintf("ledger account %s cannot cover the %d deposit recorded in escrow", escrow.Account, c.DepositAmount))
		}
		return err
	})
	if err != nil {
		return Attendance{}, err
	}

	svc.logger.Info("deposit withdrawn", core.Caller(participant), map[string]interface{}{"title": c.Title})
	svc.notifier.Notify(ctx, Event{
		Type:        EventDepositWithdrawn,
		Course:      c,
		Participant: participant,
		Amount:      c.DepositAmount,
		At:          *a.WithdrawnAt,
	})
	return a, nil
}

func (svc *Service) transfer(ctx context.Context, t Transfer) error {
	t.At = svc.now()
	if err := svc.ledger.Transfer(ctx, t); err != nil {
		if KindOf(err) != KindNone {
			return err
		}
		return errors.Wrap(err, "transferring funds")
	}
	return nil
}

func (svc *Service) GetAuthority(ctx context.Context) (Authority, error) {
	var auth Authority
	err := svc.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if auth, err = tx.GetAuthority(ctx); err != nil {
			return notFound(err, ErrAuthorityNotFound, "getting authority")
		}
		return nil
	})
	return auth, err
}

func (svc *Service) GetCourse(ctx context.Context, title string) (Course, error) {
	var c Course
	err := svc.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		c, err = svc.getCourse(ctx, tx, title)
		return err
	})
	return c, err
}

// QueryCourses returns every course, ordered by creation time.
func (svc *Service) QueryCourses(ctx context.Context) ([]Course, error) {
	var courses []Course
	err := svc.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		courses, err = tx.QueryCourses(ctx)
		return errors.Wrap(err, "querying courses")
	})
	return courses, err
}

func (svc *Service) GetLesson(ctx context.Context, title string, seq int) (Lesson, error) {
	var l Lesson
	err := svc.store.View(ctx, func(ctx context.Context, tx Tx) error {
		c, err := svc.getCourse(ctx, tx, title)
		if err != nil {
			return err
		}
		if seq < 1 || seq > int(c.LastLessonID) {
			return ErrLessonNotFound
		}
		l, err = tx.GetLesson(ctx, LessonKey(c.Key, uint8(seq)))
		if err != nil {
			return notFound(err, ErrLessonNotFound, "getting lesson")
		}
		return nil
	})
	return l, err
}

// QueryLessons returns the lessons of a course, ordered by sequence number.
func (svc *Service) QueryLessons(ctx context.Context, title string) ([]Lesson, error) {
	var lessons []Lesson
	err := svc.store.View(ctx, func(ctx context.Context, tx Tx) error {
		c, err := svc.getCourse(ctx, tx, title)
		if err != nil {
			return err
		}
		lessons, err = tx.QueryLessons(ctx, c.Key)
		return errors.Wrap(err, "querying lessons")
	})
	return lessons, err
}

func (svc *Service) GetAttendance(ctx context.Context, title, participant string) (Attendance, error) {
	var a Attendance
	err := svc.store.View(ctx, func(ctx context.Context, tx Tx) error {
		c, err := svc.getCourse(ctx, tx, title)
		if err != nil {
			return err
		}
		a, err = tx.GetAttendance(ctx, AttendanceKey(c.Key, participant))
		if err != nil {
			return notFound(err, ErrAttendanceNotFound, "getting attendance")
		}
		return nil
	})
	return a, err
}

func (svc *Service) GetEscrow(ctx context.Context, title string) (Escrow, error) {
	var escrow Escrow
	err := svc.store.View(ctx, func(ctx context.Context, tx Tx) error {
		c, err := svc.getCourse(ctx, tx, title)
		if err != nil {
			return err
		}
		escrow, err = tx.GetEscrow(ctx, c.Key)
		if err != nil {
			return notFound(err, ErrEscrowNotFound, "getting escrow")
		}
		return nil
	})
	return escrow, err
}

// CourseStatus returns the course together with its lessons and escrow, read in one transaction.
func (svc *Service) CourseStatus(ctx context.Context, title string) (Status, error) {
	var st Status
	err := svc.store.View(ctx, func(ctx context.Context, tx Tx) error {
		c, err := svc.getCourse(ctx, tx, title)
		if err != nil {
			return err
		}
		lessons, err := tx.QueryLessons(ctx, c.Key)
		if err != nil {
			return errors.Wrap(err, "querying lessons")
		}
		escrow, err := tx.GetEscrow(ctx, c.Key)
		if err != nil {
			return notFound(err, ErrEscrowNotFound, "getting escrow")
		}

		st = Status{
			Course:           c,
			Lessons:          lessons,
			Escrow:           escrow,
			RegistrationOpen: c.RegistrationOpen(),
			ScheduleComplete: c.ScheduleComplete(),
		}
		return nil
	})
	return st, err
}
