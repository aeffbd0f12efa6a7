package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"glazestudio/internal/domain"
	"glazestudio/internal/pkg/calendar"
	"glazestudio/internal/pkg/logger"
	"glazestudio/internal/pkg/validator"
	"glazestudio/internal/slotapi"
)

const DefaultDismissAfter = time.Second

const (
	statusProcessing = "Processing..."
	statusConfirmed  = "Confirmed! Opening Calendar..."
	statusNetwork    = "Network Error."
	statusInvalid    = "Please enter your name and a valid email."
)

type State int

const (
	StateIdle State = iota
	StateSlotSelected
	StateSubmitting
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSlotSelected:
		return "slot_selected"
	case StateSubmitting:
		return "submitting"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Pending is the draft booking: the picked date and slot.
type Pending struct {
	Date string      `json:"date"`
	Slot domain.Slot `json:"slot"`
}

// View is what the booking modal shows.
type View struct {
	State       State    `json:"-"`
	StateName   string   `json:"state"`
	Pending     *Pending `json:"pending,omitempty"`
	Status      string   `json:"status,omitempty"`
	StatusOK    bool     `json:"status_ok"`
	CalendarURL string   `json:"calendar_url,omitempty"`
	Name        string   `json:"client_name,omitempty"`
	Email       string   `json:"client_email,omitempty"`
}

// Flow drives one visitor's booking modal:
// Idle -> SlotSelected -> Submitting -> Confirmed | Failed.
// Failed falls straight back to SlotSelected so the visitor can retry.
type Flow struct {
	booker       Booker
	links        *calendar.Builder
	dismissAfter time.Duration
	onConfirmed  func(ctx context.Context, p Pending)
	onTransition func(from, to State)
	log          *zap.Logger

	mu          sync.Mutex
	state       State
	pending     *Pending
	status      string
	statusOK    bool
	calendarURL string
	name        string
	email       string
	gen         uint64
	dismiss     *time.Timer
}

type FlowOption func(*Flow)

func WithDismissAfter(d time.Duration) FlowOption {
	return func(f *Flow) {
		if d > 0 {
			f.dismissAfter = d
		}
	}
}

// WithOnConfirmed runs after the backend accepted a booking.
func WithOnConfirmed(fn func(ctx context.Context, p Pending)) FlowOption {
	return func(f *Flow) {
		f.onConfirmed = fn
	}
}

// WithTransitionHook observes every state change. It runs with the flow
// locked and must not call back into the flow.
func WithTransitionHook(fn func(from, to State)) FlowOption {
	return func(f *Flow) {
		f.onTransition = fn
	}
}

func WithFlowLogger(l *zap.Logger) FlowOption {
	return func(f *Flow) {
		f.log = logger.OrNop(l)
	}
}

func NewFlow(booker Booker, links *calendar.Builder, opts ...FlowOption) *Flow {
	f := &Flow{
		booker:       booker,
		links:        links,
		dismissAfter: DefaultDismissAfter,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Select captures a draft for slot on date, replacing any previous draft.
func (f *Flow) Select(date string, slot domain.Slot) error {
	if slot.IsBooked {
		return ErrSlotBooked
	}
	if slot.Date != "" && slot.Date != date {
		return errors.Wrapf(ErrValidation, "slot %d is on %s, not %s", slot.ID, slot.Date, date)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return ErrSubmitting
	}

	f.resetLocked()
	f.pending = &Pending{Date: date, Slot: slot}
	f.setStateLocked(StateSlotSelected)
	return nil
}

// Submit books the drafted slot. Validation failures keep the draft and
// never reach the backend. Nothing local changes before the backend answers.
func (f *Flow) Submit(ctx context.Context, name, email string) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	f.mu.Lock()
	switch f.state {
	case StateSubmitting:
		f.mu.Unlock()
		return ErrSubmitting
	case StateSlotSelected:
	default:
		f.mu.Unlock()
		return ErrNoSelection
	}

	f.name, f.email = name, email
	if fields := validator.Validate(SubmitRequest{ClientName: name, ClientEmail: email}); fields != nil {
		f.status, f.statusOK = statusInvalid, false
		f.mu.Unlock()
		return errors.Wrapf(ErrValidation, "%v", fields)
	}

	p := *f.pending
	gen := f.gen
	f.status, f.statusOK = statusProcessing, true
	f.setStateLocked(StateSubmitting)
	f.mu.Unlock()

	err := f.booker.Book(ctx, p.Slot.ID, name, email)

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		f.log.Debug("dropping booking result after cancel", zap.Int64("slot_id", p.Slot.ID), zap.Error(err))
		return ErrCancelled
	}

	if err != nil {
		f.setStateLocked(StateFailed)
		f.status, f.statusOK = FailureText(err), false
		f.setStateLocked(StateSlotSelected)
		f.mu.Unlock()
		f.log.Info("booking rejected", zap.Int64("slot_id", p.Slot.ID), zap.Error(err))
		return err
	}

	link, linkErr := f.links.SlotLink(p.Slot)
	if linkErr != nil {
		f.log.Warn("could not build calendar link", zap.Int64("slot_id", p.Slot.ID), zap.Error(linkErr))
	}
	f.calendarURL = link
	f.status, f.statusOK = statusConfirmed, true
	f.setStateLocked(StateConfirmed)
	f.dismiss = time.AfterFunc(f.dismissAfter, func() { f.autoDismiss(gen) })
	f.mu.Unlock()

	f.log.Info("booking confirmed", zap.Int64("slot_id", p.Slot.ID), zap.String("date", p.Date), zap.String("time", p.Slot.Time))
	if f.onConfirmed != nil {
		f.onConfirmed(ctx, p)
	}
	return nil
}

// Cancel closes the modal from any state. A submission still in flight is
// left to finish, but its result is ignored.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
	f.setStateLocked(StateIdle)
}

func (f *Flow) autoDismiss(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen || f.state != StateConfirmed {
		return
	}
	f.resetLocked()
	f.setStateLocked(StateIdle)
}

func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{
		State:       f.state,
		StateName:   f.state.String(),
		Status:      f.status,
		StatusOK:    f.statusOK,
		CalendarURL: f.calendarURL,
		Name:        f.name,
		Email:       f.email,
	}
	if f.pending != nil {
		p := *f.pending
		v.Pending = &p
	}
	return v
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// resetLocked drops the draft and invalidates pending timers and responses.
func (f *Flow) resetLocked() {
	f.gen++
	if f.dismiss != nil {
		f.dismiss.Stop()
		f.dismiss = nil
	}
	f.pending = nil
	f.status, f.statusOK = "", false
	f.calendarURL = ""
	f.name, f.email = "", ""
}

func (f *Flow) setStateLocked(to State) {
	from := f.state
	f.state = to
	if f.onTransition != nil && from != to {
		f.onTransition(from, to)
	}
}

// FailureText is the status line for a rejected booking: the backend's
// detail verbatim, or a generic network message.
func FailureText(err error) string {
	if d := slotapi.Detail(err); d != "" {
		return "Error: " + d
	}
	if errors.Is(err, slotapi.ErrNetwork) {
		return statusNetwork
	}
	return fmt.Sprintf("Error: %s", slotapi.UserMessage(err))
}
