// Package lifecycle holds the states a fiche passes through and the guards
// on each transition. It has no storage dependency; the store and the
// services both consult it.
package lifecycle

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusSent    Status = "sent"
	StatusFilled  Status = "filled"
	StatusPrinted Status = "printed"
	StatusSigned  Status = "signed"
)

// Statuses is the forward order of the lifecycle.
var Statuses = []Status{StatusSent, StatusFilled, StatusPrinted, StatusSigned}

func (s Status) Valid() bool {
	switch s {
	case StatusSent, StatusFilled, StatusPrinted, StatusSigned:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Event is something that asks a fiche to move.
type Event string

const (
	EventSubmit   Event = "submit"
	EventSimulate Event = "simulate"
	EventPrint    Event = "print"
	EventSign     Event = "sign"
)

// Transition is a single from/to pair. Stores apply it as a conditional
// update on From.
type Transition struct {
	From Status
	To   Status
}

func (t Transition) Changes() bool { return t.From != t.To }

var (
	// ErrAccessDenied covers every refusal on the guardian path. Callers
	// facing anonymous users should only ever test for this one.
	ErrAccessDenied     = errors.New("fiche not accessible")
	ErrInvalidCode      = fmt.Errorf("%w: invalid code", ErrAccessDenied)
	ErrAlreadyCompleted = fmt.Errorf("%w: already completed", ErrAccessDenied)

	ErrInvalidTransition = errors.New("invalid status transition")
)

// Next returns the transition an event causes from the given status.
// Printing an already printed fiche is allowed and leaves it unchanged.
func Next(from Status, ev Event) (Transition, error) {
	switch ev {
	case EventSubmit, EventSimulate:
		if from == StatusSent {
			return Transition{From: from, To: StatusFilled}, nil
		}
	case EventPrint:
		switch from {
		case StatusFilled:
			return Transition{From: from, To: StatusPrinted}, nil
		case StatusPrinted:
			return Transition{From: from, To: StatusPrinted}, nil
		}
	case EventSign:
		if from == StatusPrinted {
			return Transition{From: from, To: StatusSigned}, nil
		}
	}
	return Transition{}, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, ev, from)
}

// GuardianCanAccess reports whether a code holder may read or submit.
func GuardianCanAccess(s Status) bool {
	return s == StatusSent
}

// PrintTarget is the status a fiche ends up in after being printed and
// whether that is a change.
func PrintTarget(s Status) (Status, bool, error) {
	t, err := Next(s, EventPrint)
	if err != nil {
		return "", false, err
	}
	return t.To, t.Changes(), nil
}

// GuardianAccess is the only check standing between a code holder and a
// fiche: it passes while the fiche is still waiting to be filled.
func GuardianAccess(s Status) error {
	if !GuardianCanAccess(s) {
		return ErrAlreadyCompleted
	}
	return nil
}

// CanDelete reports whether the fiche may be removed. Signed fiches stay as
// a record of consent without personal data.
func CanDelete(s Status) bool {
	return s.Valid() && s != StatusSigned
}

// RetainsData is false once a fiche is signed: its payload must be erased.
func RetainsData(s Status) bool {
	return s != StatusSigned
}
