package booking

import (
	"fmt"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
)

// Action is a lifecycle operation applied to an appointment.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionComplete   Action = "complete"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
	ActionAccept     Action = "accept"
	ActionDecline    Action = "decline"
)

// Intent asks the dispatcher to send one kind of notification about an
// appointment. Intents are produced by transitions and executed after the
// write is committed.
type Intent struct {
	Kind notify.Kind
}

type transition struct {
	from    []appointments.Status
	to      appointments.Status
	intents []Intent
}

var transitions = map[Action]transition{
	ActionConfirm: {
		from:    []appointments.Status{appointments.StatusPending, appointments.StatusRescheduled},
		to:      appointments.StatusConfirmed,
		intents: []Intent{{Kind: notify.KindConfirmation}},
	},
	ActionComplete: {
		from: []appointments.Status{appointments.StatusConfirmed},
		to:   appointments.StatusCompleted,
	},
	ActionCancel: {
		from:    []appointments.Status{appointments.StatusPending, appointments.StatusConfirmed, appointments.StatusRescheduled},
		to:      appointments.StatusCancelled,
		intents: []Intent{{Kind: notify.KindCancellation}},
	},
	ActionReschedule: {
		from:    []appointments.Status{appointments.StatusPending, appointments.StatusConfirmed, appointments.StatusRescheduled},
		to:      appointments.StatusRescheduled,
		intents: []Intent{{Kind: notify.KindReschedule}},
	},
	ActionAccept: {
		from: []appointments.Status{appointments.StatusRescheduled},
		to:   appointments.StatusConfirmed,
	},
	ActionDecline: {
		from: []appointments.Status{appointments.StatusRescheduled},
		to:   appointments.StatusCancelled,
	},
}

// Transition applies action to an appointment in status from. It has no side
// effects: the caller persists the new status and hands the intents to a
// Dispatcher.
func Transition(from appointments.Status, action Action) (appointments.Status, []Intent, error) {
	t, ok := transitions[action]
	if !ok {
		return from, nil, &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", action), Err: ErrInvalidTransition}
	}
	for _, s := range t.from {
		if s == from {
			return t.to, append([]Intent(nil), t.intents...), nil
		}
	}
	return from, nil, &ValidationError{
		Field:   "status",
		Message: fmt.Sprintf("cannot %s an appointment that is %s", action, from),
		Err:     ErrInvalidTransition,
	}
}

// actionFor maps a requested target status to the action that reaches it.
func actionFor(to appointments.Status) (Action, bool) {
	switch to {
	case appointments.StatusConfirmed:
		return ActionConfirm, true
	case appointments.StatusCompleted:
		return ActionComplete, true
	case appointments.StatusCancelled:
		return ActionCancel, true
	case appointments.StatusRescheduled:
		return ActionReschedule, true
	}
	return "", false
}
