package course

import (
	"github.com/pkg/errors"
)

// Kind classifies a rejected operation.
type Kind uint8

const (
	KindNone Kind = iota
	KindAuthorization
	KindDuplicate
	KindSequence
	KindCapacity
	KindFunds
	KindState
	KindTiming
	KindNotFound
)

var kindNames = map[Kind]string{
	KindAuthorization: "authorization",
	KindDuplicate:     "duplicate",
	KindSequence:      "sequence",
	KindCapacity:      "capacity",
	KindFunds:         "funds",
	KindState:         "state",
	KindTiming:        "timing",
	KindNotFound:      "not_found",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Error is a rule violation. No state was changed by the operation that returned it.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindNone.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

var (
	// authorization
	ErrUnauthorized = newError(KindAuthorization, "caller is not allowed to perform this operation")
	ErrNotEnrolled  = newError(KindAuthorization, "not enrolled")

	// duplicate
	ErrAlreadyInitialized = newError(KindDuplicate, "authority already initialized")
	ErrCourseExists       = newError(KindDuplicate, "a course with this title already exists")
	ErrAlreadyEnrolled    = newError(KindDuplicate, "already enrolled")
	ErrAlreadyMarked      = newError(KindDuplicate, "already marked")

	// sequence & capacity
	ErrLessonOutOfOrder = newError(KindSequence, "lesson sequence number must follow the last lesson")
	ErrLessonLimit      = newError(KindCapacity, "exceeded course lesson limit")
	ErrEscrowFull       = newError(KindCapacity, "escrow cannot hold another deposit")

	// funds
	ErrInsufficientDeposit = newError(KindFunds, "insufficient deposit")
	ErrInsufficientBalance = newError(KindFunds, "insufficient balance")

	// state
	ErrRegistrationClosed   = newError(KindState, "registration closed")
	ErrScheduleIncomplete   = newError(KindState, "lessons not all scheduled yet")
	ErrAlreadyWithdrawn     = newError(KindState, "deposit already withdrawn")
	ErrAttendanceIncomplete = newError(KindState, "attendance incomplete")

	// timing
	ErrLate                  = newError(KindTiming, "late")
	ErrNotReadyForWithdrawal = newError(KindTiming, "not ready for withdrawal")

	// not found
	ErrAuthorityNotFound  = newError(KindNotFound, "authority not initialized")
	ErrCourseNotFound     = newError(KindNotFound, "course not found")
	ErrLessonNotFound     = newError(KindNotFound, "lesson not initialized")
	ErrAttendanceNotFound = newError(KindNotFound, "attendance record not found")
	ErrEscrowNotFound     = newError(KindNotFound, "escrow not found")
)

// Store errors. Stores return these; the Service maps them to the errors above.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
)
