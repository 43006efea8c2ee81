package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/dhamana/core/course"
)

var errReadOnly = errors.New("write attempted in a read-only transaction")

type tables struct {
	authority   *course.Authority
	courses     map[string]course.Course
	lessons     map[string]course.Lesson
	attendances map[string]course.Attendance
	escrows     map[string]course.Escrow
}

func newTables() tables {
	return tables{
		courses:     make(map[string]course.Course),
		lessons:     make(map[string]course.Lesson),
		attendances: make(map[string]course.Attendance),
		escrows:     make(map[string]course.Escrow),
	}
}

// DB is a process-local course.Store. Transactions are serialized by a single lock;
// writes are staged and only applied when the transaction function succeeds.
type DB struct {
	mutex sync.RWMutex
	data  tables
}

var _ course.Store = (*DB)(nil) // interface compliance check

func NewDB() *DB {
	return &DB{data: newTables()}
}

func (db *DB) Atomically(ctx context.Context, fn func(ctx context.Context, tx course.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	t := &tx{db: db, staged: newTables()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (db *DB) View(ctx context.Context, fn func(ctx context.Context, tx course.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return fn(ctx, &tx{db: db, readOnly: true})
}

type tx struct {
	db       *DB
	readOnly bool
	staged   tables
}

func (t *tx) commit() {
	if t.staged.authority != nil {
		t.db.data.authority = t.staged.authority
	}
	for k, v := range t.staged.courses {
		t.db.data.courses[k] = v
	}
	for k, v := range t.staged.lessons {
		t.db.data.lessons[k] = v
	}
	for k, v := range t.staged.attendances {
		t.db.data.attendances[k] = v
	}
	for k, v := range t.staged.escrows {
		t.db.data.escrows[k] = v
	}
}

func (t *tx) GetAuthority(_ context.Context) (course.Authority, error) {
	if t.staged.authority != nil {
		return *t.staged.authority, nil
	}
	if t.db.data.authority != nil {
		return *t.db.data.authority, nil
	}
	return course.Authority{}, course.ErrRecordNotFound
}

func (t *tx) CreateAuthority(ctx context.Context, auth course.Authority) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.GetAuthority(ctx); err == nil {
		return course.ErrRecordExists
	}
	t.staged.authority = &auth
	return nil
}

func (t *tx) GetCourse(_ context.Context, key string) (course.Course, error) {
	if c, ok := t.staged.courses[key]; ok {
		return copyCourse(c), nil
	}
	if c, ok := t.db.data.courses[key]; ok {
		return copyCourse(c), nil
	}
	return course.Course{}, course.ErrRecordNotFound
}

// QueryCourses orders courses by creation time, then title.
func (t *tx) QueryCourses(_ context.Context) ([]course.Course, error) {
	merged := make(map[string]course.Course, len(t.db.data.courses)+len(t.staged.courses))
	for k, c := range t.db.data.courses {
		merged[k] = c
	}
	for k, c := range t.staged.courses {
		merged[k] = c
	}

	courses := make([]course.Course, 0, len(merged))
	for _, c := range merged {
		courses = append(courses, copyCourse(c))
	}
	sort.Slice(courses, func(i, j int) bool {
		if courses[i].CreatedAt.Equal(courses[j].CreatedAt) {
			return courses[i].Title < courses[j].Title
		}
		return courses[i].CreatedAt.Before(courses[j].CreatedAt)
	})
	return courses, nil
}

func (t *tx) CreateCourse(ctx context.Context, c course.Course) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.GetCourse(ctx, c.Key); err == nil {
		return course.ErrRecordExists
	}
	t.staged.courses[c.Key] = copyCourse(c)
	return nil
}

func (t *tx) UpdateCourse(ctx context.Context, c course.Course) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.GetCourse(ctx, c.Key); err != nil {
		return err
	}
	t.staged.courses[c.Key] = copyCourse(c)
	return nil
}

func (t *tx) GetLesson(_ context.Context, key string) (course.Lesson, error) {
	if l, ok := t.staged.lessons[key]; ok {
		return l, nil
	}
	if l, ok := t.db.data.lessons[key]; ok {
		return l, nil
	}
	return course.Lesson{}, course.ErrRecordNotFound
}

// QueryLessons orders lessons by sequence number.
func (t *tx) QueryLessons(_ context.Context, courseKey string) ([]course.Lesson, error) {
	lessons := make([]course.Lesson, 0)
	for _, l := range t.db.data.lessons {
		if _, ok := t.staged.lessons[l.Key]; !ok && l.CourseKey == courseKey {
			lessons = append(lessons, l)
		}
	}
	for _, l := range t.staged.lessons {
		if l.CourseKey == courseKey {
			lessons = append(lessons, l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].SequenceNumber < lessons[j].SequenceNumber })
	return lessons, nil
}

func (t *tx) CreateLesson(ctx context.Context, l course.Lesson) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.GetLesson(ctx, l.Key); err == nil {
		return course.ErrRecordExists
	}
	t.staged.lessons[l.Key] = l
	return nil
}

func (t *tx) GetAttendance(_ context.Context, key string) (course.Attendance, error) {
	if a, ok := t.staged.attendances[key]; ok {
		return copyAttendance(a), nil
	}
	if a, ok := t.db.data.attendances[key]; ok {
		return copyAttendance(a), nil
	}
	return course.Attendance{}, course.ErrRecordNotFound
}

func (t *tx) PutAttendance(_ context.Context, a course.Attendance) error {
	if t.readOnly {
		return errReadOnly
	}
	t.staged.attendances[a.Key] = copyAttendance(a)
	return nil
}

func (t *tx) GetEscrow(_ context.Context, courseKey string) (course.Escrow, error) {
	if e, ok := t.staged.escrows[courseKey]; ok {
		return e, nil
	}
	if e, ok := t.db.data.escrows[courseKey]; ok {
		return e, nil
	}
	return course.Escrow{}, course.ErrRecordNotFound
}

func (t *tx) PutEscrow(_ context.Context, e course.Escrow) error {
	if t.readOnly {
		return errReadOnly
	}
	t.staged.escrows[e.CourseKey] = e
	return nil
}

func copyCourse(c course.Course) course.Course {
	c.Students = append(make([]string, 0, len(c.Students)), c.Students...)
	return c
}

func copyAttendance(a course.Attendance) course.Attendance {
	a.Attended = append(make(course.Seqs, 0, len(a.Attended)), a.Attended...)
	if a.WithdrawnAt != nil {
		at := *a.WithdrawnAt
		a.WithdrawnAt = &at
	}
	return a
}
