package sqlxdb

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/dhamana/core/course"
)

func TestCourseRow(t *testing.T) {
	local := time.FixedZone("WAT", 3600)
	c := course.Course{
		Key:            course.CourseKey("Go 101"),
		Title:          "Go 101",
		Manager:        "manager",
		Asset:          course.DefaultAsset,
		DepositAmount:  250,
		LockUntil:      time.Date(2026, 4, 1, 10, 0, 0, 0, local),
		MaxLessonCount: 3,
		LastLessonID:   1,
		EscrowAccount:  course.EscrowAccount(course.CourseKey("Go 101")),
		CreatedAt:      time.Date(2026, 3, 2, 10, 0, 0, 0, local),
	}

	row := marshalCourse(c)
	assert.Equal(t, pq.StringArray{}, row.Students)
	assert.Equal(t, time.UTC, row.LockUntil.Location())

	got := row.unmarshal()
	assert.Equal(t, []string{}, got.Students)
	assert.True(t, got.LockUntil.Equal(c.LockUntil))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
	assert.Equal(t, c.Key, got.Key)
	assert.Equal(t, c.LastLessonID, got.LastLessonID)
}

func TestAttendanceRow(t *testing.T) {
	a := course.Attendance{
		Key:         course.AttendanceKey(course.CourseKey("Go 101"), "alice"),
		CourseKey:   course.CourseKey("Go 101"),
		Participant: "alice",
		Attended:    course.Seqs{1, 2},
	}

	row := marshalAttendance(a)
	assert.Equal(t, pq.Int64Array{1, 2}, row.Attended)
	assert.False(t, row.WithdrawnAt.Valid)
	assert.Equal(t, a, row.unmarshal())

	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	a.WithdrawnAt = &at
	row = marshalAttendance(a)
	assert.True(t, row.WithdrawnAt.Valid)
	got := row.unmarshal()
	if assert.NotNil(t, got.WithdrawnAt) {
		assert.True(t, got.WithdrawnAt.Equal(at))
	}
	assert.True(t, got.Withdrawn())
}

func TestTrapErr(t *testing.T) {
	assert.NoError(t, trapErr(nil, "selecting"))
	assert.Equal(t, course.ErrRecordNotFound, trapErr(errors.Wrap(sql.ErrNoRows, "query"), "selecting"))
	assert.Equal(t, course.ErrRecordExists, trapErr(&pq.Error{Code: pgUniqueViolation}, "inserting"))

	err := trapErr(&pq.Error{Code: pgSerializationFailure}, "updating")
	assert.EqualError(t, err, "updating: pq: ")
	assert.Equal(t, pgSerializationFailure, pgCode(err))
}

func TestTx_forUpdate(t *testing.T) {
	assert.Equal(t, "SELECT 1 FOR UPDATE", (&tx{lock: true}).forUpdate("SELECT 1"))
	assert.Equal(t, "SELECT 1", (&tx{}).forUpdate("SELECT 1"))
}
