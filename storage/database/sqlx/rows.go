package sqlxdb

import (
	"time"

	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dhamana/core/course"
)

type authorityRow struct {
	Admin     string    `db:"admin"`
	Manager   string    `db:"manager"`
	CreatedAt time.Time `db:"created_at"`
}

func (r authorityRow) unmarshal() course.Authority {
	return course.Authority{Admin: r.Admin, Manager: r.Manager, CreatedAt: r.CreatedAt.UTC()}
}

type courseRow struct {
	ID             string         `db:"id"`
	Title          string         `db:"title"`
	Manager        string         `db:"manager"`
	Asset          string         `db:"asset"`
	DepositAmount  uint64         `db:"deposit_amount"`
	LockUntil      time.Time      `db:"lock_until"`
	MaxLessonCount uint8          `db:"max_lesson_count"`
	LastLessonID   uint8          `db:"last_lesson_id"`
	Students       pq.StringArray `db:"students"`
	EscrowAccount  string         `db:"escrow_account"`
	CreatedAt      time.Time      `db:"created_at"`
}

func marshalCourse(c course.Course) courseRow {
	students := pq.StringArray(c.Students)
	if students == nil {
		students = pq.StringArray{}
	}
	return courseRow{
		ID:             c.Key,
		Title:          c.Title,
		Manager:        c.Manager,
		Asset:          c.Asset,
		DepositAmount:  c.DepositAmount,
		LockUntil:      c.LockUntil.UTC(),
		MaxLessonCount: c.MaxLessonCount,
		LastLessonID:   c.LastLessonID,
		Students:       students,
		EscrowAccount:  c.EscrowAccount,
		CreatedAt:      c.CreatedAt.UTC(),
	}
}

func (r courseRow) unmarshal() course.Course {
	students := []string(r.Students)
	if students == nil {
		students = []string{}
	}
	return course.Course{
		Key:            r.ID,
		Title:          r.Title,
		Manager:        r.Manager,
		Asset:          r.Asset,
		DepositAmount:  r.DepositAmount,
		LockUntil:      r.LockUntil.UTC(),
		MaxLessonCount: r.MaxLessonCount,
		LastLessonID:   r.LastLessonID,
		Students:       students,
		EscrowAccount:  r.EscrowAccount,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type lessonRow struct {
	ID                 string    `db:"id"`
	CourseID           string    `db:"course_id"`
	SequenceNumber     uint8     `db:"sequence_number"`
	AttendanceDeadline time.Time `db:"attendance_deadline"`
}

func (r lessonRow) unmarshal() course.Lesson {
	return course.Lesson{
		Key:                r.ID,
		CourseKey:          r.CourseID,
		SequenceNumber:     r.SequenceNumber,
		AttendanceDeadline: r.AttendanceDeadline.UTC(),
	}
}

type attendanceRow struct {
	ID          string        `db:"id"`
	CourseID    string        `db:"course_id"`
	Participant string        `db:"participant"`
	Attended    pq.Int64Array `db:"attended"`
	WithdrawnAt null.Time     `db:"withdrawn_at"`
}

func marshalAttendance(a course.Attendance) attendanceRow {
	attended := make(pq.Int64Array, 0, len(a.Attended))
	for _, seq := range a.Attended {
		attended = append(attended, int64(seq))
	}
	withdrawnAt := null.TimeFromPtr(a.WithdrawnAt)
	if withdrawnAt.Valid {
		withdrawnAt.Time = withdrawnAt.Time.UTC()
	}
	return attendanceRow{
		ID:          a.Key,
		CourseID:    a.CourseKey,
		Participant: a.Participant,
		Attended:    attended,
		WithdrawnAt: withdrawnAt,
	}
}

func (r attendanceRow) unmarshal() course.Attendance {
	attended := make(course.Seqs, 0, len(r.Attended))
	for _, seq := range r.Attended {
		attended = append(attended, uint8(seq))
	}
	a := course.Attendance{
		Key:         r.ID,
		CourseKey:   r.CourseID,
		Participant: r.Participant,
		Attended:    attended,
	}
	if r.WithdrawnAt.Valid {
		at := r.WithdrawnAt.Time.UTC()
		a.WithdrawnAt = &at
	}
	return a
}

type escrowRow struct {
	CourseID string `db:"course_id"`
	Account  string `db:"account"`
	Asset    string `db:"asset"`
	Balance  uint64 `db:"balance"`
}

func (r escrowRow) unmarshal() course.Escrow {
	return course.Escrow{CourseKey: r.CourseID, Account: r.Account, Asset: r.Asset, Balance: r.Balance}
}
