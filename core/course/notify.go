package course

import (
	"context"
	"net/mail"
	"time"

	"github.com/trezcool/dhamana/core"
)

type EventType string

const (
	EventScheduleCompleted EventType = "schedule_completed"
	EventDepositWithdrawn  EventType = "deposit_withdrawn"
)

// Event is emitted after a successful operation has been committed.
type Event struct {
	Type        EventType
	Course      Course
	Participant string
	Amount      uint64
	At          time.Time
}

// Notifier must not block; delivery failures are its own to report.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

const (
	scheduleCompletedTmpl = "course/schedule_completed"
	depositWithdrawnTmpl  = "course/deposit_withdrawn"
)

func init() {
	mustRegisterTemplate(scheduleCompletedTmpl, `All {{.Course.MaxLessonCount}} lessons of "{{.Course.Title}}" are now scheduled.

Enrolled participants: {{len .Course.Students}}
Deposit per participant: {{.Course.DepositAmount}} {{.Course.Asset}}
Deposits unlock on: {{.Course.LockUntil.Format "2006-01-02 15:04 MST"}}
`)
	mustRegisterTemplate(depositWithdrawnTmpl, `{{.Participant}} withdrew their deposit of {{.Amount}} {{.Course.Asset}} from "{{.Course.Title}}".

Withdrawn at: {{.At.Format "2006-01-02 15:04:05 MST"}}
`)
}

func mustRegisterTemplate(name, text string) {
	if err := core.RegisterEmailTemplate(name, text); err != nil {
		panic(err)
	}
}

// MailNotifier emails course events to a fixed list of addresses.
type MailNotifier struct {
	mailSvc core.EmailService
	to      []mail.Address
}

var _ Notifier = (*MailNotifier)(nil) // interface compliance check

func NewMailNotifier(mailSvc core.EmailService, conf *core.Config) *MailNotifier {
	to := make([]mail.Address, 0, len(conf.Email.NotifyAddresses))
	for _, addr := range conf.Email.NotifyAddresses {
		if a, err := mail.ParseAddress(addr); err == nil {
			to = append(to, *a)
		}
	}
	return &MailNotifier{mailSvc: mailSvc, to: to}
}

func (n *MailNotifier) Notify(_ context.Context, ev Event) {
	if len(n.to) == 0 {
		return
	}

	msg := &core.EmailMessage{To: n.to, TemplateData: ev}
	switch ev.Type {
	case EventScheduleCompleted:
		msg.Subject = "Schedule complete: " + ev.Course.Title
		msg.TemplateName = scheduleCompletedTmpl
	case EventDepositWithdrawn:
		msg.Subject = "Deposit withdrawn: " + ev.Course.Title
		msg.TemplateName = depositWithdrawnTmpl
	default:
		return
	}
	n.mailSvc.SendMessages(msg)
}
