package sqlxdb

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/dhamana/core"
	"github.com/trezcool/dhamana/core/course"
)

const (
	pgUniqueViolation       = "23505"
	pgSerializationFailure  = "40001"
	maxSerializationRetries = 3
)

type txKey struct{}

// executor returns the transaction carried by ctx, or db when there is none.
func executor(ctx context.Context, db *sqlx.DB) core.DBExecutor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// Store is a Postgres course.Store. Write transactions run SERIALIZABLE and lock the course row they read.
type Store struct {
	db *sqlx.DB
}

var _ course.Store = (*Store)(nil) // interface compliance check

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx course.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxSerializationRetries; attempt++ {
		err = s.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, false, fn)
		if pgCode(err) != pgSerializationFailure {
			return err
		}
	}
	return err
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx course.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, true, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, readOnly bool, fn func(ctx context.Context, tx course.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	t := &tx{exec: sqlTx, lock: !readOnly}
	if err = fn(context.WithValue(ctx, txKey{}, sqlTx), t); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return errors.Wrap(sqlTx.Commit(), "committing transaction")
}

type tx struct {
	exec core.DBExecutor
	lock bool
}

func (t *tx) forUpdate(q string) string {
	if t.lock {
		return q + " FOR UPDATE"
	}
	return q
}

// trapErr maps "no rows" to course.ErrRecordNotFound and unique violations to course.ErrRecordExists.
func trapErr(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return course.ErrRecordNotFound
	case pgCode(err) == pgUniqueViolation:
		return course.ErrRecordExists
	}
	return errors.Wrap(err, msg)
}

func (t *tx) GetAuthority(ctx context.Context) (course.Authority, error) {
	var row authorityRow
	err := t.exec.GetContext(ctx, &row, `SELECT admin, manager, created_at FROM authority WHERE id`)
	if err != nil {
		return course.Authority{}, trapErr(err, "selecting authority")
	}
	return row.unmarshal(), nil
}

func (t *tx) CreateAuthority(ctx context.Context, auth course.Authority) error {
	_, err := sqlx.NamedExecContext(ctx, t.exec,
		`INSERT INTO authority (admin, manager, created_at) VALUES (:admin, :manager, :created_at)`,
		authorityRow{Admin: auth.Admin, Manager: auth.Manager, CreatedAt: auth.CreatedAt.UTC()})
	return trapErr(err, "inserting authority")
}

const courseColumns = `id, title, manager, asset, deposit_amount, lock_until, max_lesson_count, last_lesson_id, students, escrow_account, created_at`

func (t *tx) GetCourse(ctx context.Context, key string) (course.Course, error) {
	var row courseRow
	err := t.exec.GetContext(ctx, &row, t.forUpdate(`SELECT `+courseColumns+` FROM course WHERE id = $1`), key)
	if err != nil {
		return course.Course{}, trapErr(err, "selecting course")
	}
	return row.unmarshal(), nil
}

func (t *tx) QueryCourses(ctx context.Context) ([]course.Course, error) {
	ordering := []core.DBOrdering{{Field: "created_at", Ascending: true}, {Field: "title", Ascending: true}}
	var rows []courseRow
	err := t.exec.SelectContext(ctx, &rows,
		`SELECT `+courseColumns+` FROM course ORDER BY `+ordering[0].String()+`, `+ordering[1].String())
	if err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}

	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.unmarshal())
	}
	return courses, nil
}

func (t *tx) CreateCourse(ctx context.Context, c course.Course) error {
	_, err := sqlx.NamedExecContext(ctx, t.exec,
		`INSERT INTO course (`+courseColumns+`) VALUES (
			:id, :title, :manager, :asset, :deposit_amount, :lock_until, :max_lesson_count,
			:last_lesson_id, :students, :escrow_account, :created_at)`,
		marshalCourse(c))
	return trapErr(err, "inserting course")
}

func (t *tx) UpdateCourse(ctx context.Context, c course.Course) error {
	res, err := sqlx.NamedExecContext(ctx, t.exec,
		`UPDATE course SET last_lesson_id = :last_lesson_id, students = :students WHERE id = :id`,
		marshalCourse(c))
	if err != nil {
		return trapErr(err, "updating course")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "updating course")
	} else if n == 0 {
		return course.ErrRecordNotFound
	}
	return nil
}

const lessonColumns = `id, course_id, sequence_number, attendance_deadline`

func (t *tx) GetLesson(ctx context.Context, key string) (course.Lesson, error) {
	var row lessonRow
	if err := t.exec.GetContext(ctx, &row, `SELECT `+lessonColumns+` FROM lesson WHERE id = $1`, key); err != nil {
		return course.Lesson{}, trapErr(err, "selecting lesson")
	}
	return row.unmarshal(), nil
}

func (t *tx) QueryLessons(ctx context.Context, courseKey string) ([]course.Lesson, error) {
	ordering := core.DBOrdering{Field: "sequence_number", Ascending: true}
	var rows []lessonRow
	err := t.exec.SelectContext(ctx, &rows,
		`SELECT `+lessonColumns+` FROM lesson WHERE course_id = $1 ORDER BY `+ordering.String(), courseKey)
	if err != nil {
		return nil, errors.Wrap(err, "selecting lessons")
	}

	lessons := make([]course.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, row.unmarshal())
	}
	return lessons, nil
}

func (t *tx) CreateLesson(ctx context.Context, l course.Lesson) error {
	_, err := sqlx.NamedExecContext(ctx, t.exec,
		`INSERT INTO lesson (`+lessonColumns+`) VALUES (:id, :course_id, :sequence_number, :attendance_deadline)`,
		lessonRow{
			ID:                 l.Key,
			CourseID:           l.CourseKey,
			SequenceNumber:     l.SequenceNumber,
			AttendanceDeadline: l.AttendanceDeadline.UTC(),
		})
	return trapErr(err, "inserting lesson")
}

const attendanceColumns = `id, course_id, participant, attended, withdrawn_at`

func (t *tx) GetAttendance(ctx context.Context, key string) (course.Attendance, error) {
	var row attendanceRow
	err := t.exec.GetContext(ctx, &row, t.forUpdate(`SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`), key)
	if err != nil {
		return course.Attendance{}, trapErr(err, "selecting attendance")
	}
	return row.unmarshal(), nil
}

func (t *tx) PutAttendance(ctx context.Context, a course.Attendance) error {
	_, err := sqlx.NamedExecContext(ctx, t.exec,
		`INSERT INTO attendance (`+attendanceColumns+`) VALUES (:id, :course_id, :participant, :attended, :withdrawn_at)
		ON CONFLICT (id) DO UPDATE SET attended = EXCLUDED.attended, withdrawn_at = EXCLUDED.withdrawn_at`,
		marshalAttendance(a))
	return trapErr(err, "saving attendance")
}

func (t *tx) GetEscrow(ctx context.Context, courseKey string) (course.Escrow, error) {
	var row escrowRow
	err := t.exec.GetContext(ctx, &row,
		t.forUpdate(`SELECT course_id, account, asset, balance FROM escrow WHERE course_id = $1`), courseKey)
	if err != nil {
		return course.Escrow{}, trapErr(err, "selecting escrow")
	}
	return row.unmarshal(), nil
}

func (t *tx) PutEscrow(ctx context.Context, e course.Escrow) error {
	_, err := sqlx.NamedExecContext(ctx, t.exec,
		`INSERT INTO escrow (course_id, account, asset, balance) VALUES (:course_id, :account, :asset, :balance)
		ON CONFLICT (course_id) DO UPDATE SET balance = EXCLUDED.balance`,
		escrowRow{CourseID: e.CourseKey, Account: e.Account, Asset: e.Asset, Balance: e.Balance})
	return trapErr(err, "saving escrow")
}
