package course

import (
	"encoding/json"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/dhamana/core"
)

// DefaultAsset denominates deposits of courses created without an explicit asset.
const DefaultAsset = "native"

// MaxEscrowBalance bounds what an escrow can hold, deposits included, so that ledgers keeping signed balances never overflow.
const MaxEscrowBalance uint64 = math.MaxInt64

// Authority pairs the program admin with the single manager allowed to create courses.
type Authority struct {
	Admin     string    `json:"admin"`
	Manager   string    `json:"manager"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Course struct {
	Key            string    `json:"key"`
	Title          string    `json:"title"`
	Manager        string    `json:"manager"`
	Asset          string    `json:"asset"`
	DepositAmount  uint64    `json:"deposit_amount"`
	LockUntil      time.Time `json:"lock_until"` // UTC
	MaxLessonCount uint8     `json:"max_lesson_count"`
	LastLessonID   uint8     `json:"last_lesson_id"`
	Students       []string  `json:"students"`
	EscrowAccount  string    `json:"escrow_account"`
	CreatedAt      time.Time `json:"created_at"` // UTC
}

// RegistrationOpen reports whether participants may still enroll: no lesson has been scheduled yet.
func (c Course) RegistrationOpen() bool {
	return c.LastLessonID == 0
}

// ScheduleComplete reports whether every lesson of the course has been scheduled.
func (c Course) ScheduleComplete() bool {
	return c.LastLessonID == c.MaxLessonCount
}

func (c Course) IsEnrolled(participant string) bool {
	for _, s := range c.Students {
		if s == participant {
			return true
		}
	}
	return false
}

type Lesson struct {
	Key                string    `json:"key"`
	CourseKey          string    `json:"course_key"`
	SequenceNumber     uint8     `json:"sequence_number"`
	AttendanceDeadline time.Time `json:"attendance_deadline"` // UTC
}

// Seqs is a list of lesson sequence numbers. It encodes as a JSON array of numbers.
type Seqs []uint8

func (s Seqs) Contains(seq uint8) bool {
	for _, v := range s {
		if v == seq {
			return true
		}
	}
	return false
}

func (s Seqs) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(s))
	for i, v := range s {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

func (s *Seqs) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Seqs, len(raw))
	for i, v := range raw {
		if v < 1 || v > math.MaxUint8 {
			return errors.Errorf("lesson sequence number %d out of range", v)
		}
		out[i] = uint8(v)
	}
	*s = out
	return nil
}

type Attendance struct {
	Key         string     `json:"key"`
	CourseKey   string     `json:"course_key"`
	Participant string     `json:"participant"`
	Attended    Seqs       `json:"attended"`
	WithdrawnAt *time.Time `json:"withdrawn_at"` // UTC
}

func (a Attendance) Withdrawn() bool {
	return a.WithdrawnAt != nil
}

// Escrow is the custody account holding a course's deposits.
type Escrow struct {
	CourseKey string `json:"course_key"`
	Account   string `json:"account"`
	Asset     string `json:"asset"`
	Balance   uint64 `json:"balance"`
}

// Status aggregates everything known about a course.
type Status struct {
	Course           Course   `json:"course"`
	Lessons          []Lesson `json:"lessons"`
	Escrow           Escrow   `json:"escrow"`
	RegistrationOpen bool     `json:"registration_open"`
	ScheduleComplete bool     `json:"schedule_complete"`
}

// NewAuthority contains information needed to initialize the Authority.
type NewAuthority struct {
	Admin   string `json:"admin" validate:"required,notblank"`
	Manager string `json:"manager" validate:"required,notblank"`
}

func (na *NewAuthority) Validate(validate *validator.Validate) error {
	na.Admin = core.CleanString(na.Admin)
	na.Manager = core.CleanString(na.Manager)
	return validate.Struct(na)
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title          string    `json:"title" validate:"required,notblank,max=32"`
	DepositAmount  uint64    `json:"deposit_amount" validate:"gt=0,lte=9223372036854775807"`
	LockUntil      time.Time `json:"lock_until" validate:"required"`
	MaxLessonCount int       `json:"max_lesson_count" validate:"gte=1,lte=255"`
	Asset          string    `json:"asset" validate:"omitempty,notblank,max=64"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Asset = core.CleanString(nc.Asset)
	return validate.Struct(nc)
}
