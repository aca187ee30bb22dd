package changeset

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// Status is the derived lifecycle state of a changeset.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusReady    Status = "ready"
	StatusArchived Status = "archived"
)

// ParseStatus parses a status filter.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusReady, StatusArchived:
		return st, nil
	}
	return "", rperrors.Coded(rperrors.CodeInvalidConfig, "changeset.ParseStatus",
		"unknown changeset status %q (want draft, ready or archived)", s)
}

// Lifecycle events.
const (
	EventAddPackages   statekit.EventType = "ADD_PACKAGES"
	EventClearPackages statekit.EventType = "CLEAR_PACKAGES"
	EventArchive       statekit.EventType = "ARCHIVE"
)

var (
	stateIDDraft    = statekit.StateID(StatusDraft)
	stateIDReady    = statekit.StateID(StatusReady)
	stateIDArchived = statekit.StateID(StatusArchived)
)

// Lifecycle enforces the changeset state machine:
// draft <-> ready, draft|ready -> archived, archived is final.
type Lifecycle struct {
	newInterpreter func() *statekit.Interpreter[*Changeset]
}

// NewLifecycle builds the lifecycle machine.
func NewLifecycle() (*Lifecycle, error) {
	machine, err := statekit.NewMachine[*Changeset]("changeset").
		WithInitial(stateIDDraft).
		State(stateIDDraft).
		On(EventAddPackages).Target(stateIDReady).
		On(EventClearPackages).Target(stateIDDraft).
		On(EventArchive).Target(stateIDArchived).
		Done().
		State(stateIDReady).
		On(EventAddPackages).Target(stateIDReady).
		On(EventClearPackages).Target(stateIDDraft).
		On(EventArchive).Target(stateIDArchived).
		Done().
		State(stateIDArchived).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build changeset machine: %w", err)
	}
	return &Lifecycle{
		newInterpreter: func() *statekit.Interpreter[*Changeset] {
			return statekit.NewInterpreter(machine)
		},
	}, nil
}

// pathTo lists the events that lead from the initial state to s.
func pathTo(s Status) []statekit.EventType {
	switch s {
	case StatusReady:
		return []statekit.EventType{EventAddPackages}
	case StatusArchived:
		return []statekit.EventType{EventArchive}
	}
	return nil
}

// Next returns the status reached from `from` by ev. Archived records accept
// no events.
func (l *Lifecycle) Next(from Status, ev statekit.EventType) (Status, error) {
	const op = "changeset.Lifecycle.Next"

	interp := l.newInterpreter()
	interp.Start()
	for _, e := range pathTo(from) {
		interp.Send(statekit.Event{Type: e})
	}
	if interp.Done() {
		return from, &rperrors.Error{
			Kind:    rperrors.KindState,
			Op:      op,
			Message: fmt.Sprintf("changeset is %s; %s is not allowed", from, ev),
		}
	}
	interp.Send(statekit.Event{Type: ev})
	return Status(interp.State().Value), nil
}

// EventFor returns the event that moves a record to match its packages.
func EventFor(c *Changeset) statekit.EventType {
	if len(c.Packages) > 0 {
		return EventAddPackages
	}
	return EventClearPackages
}
