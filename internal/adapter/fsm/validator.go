package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// jobEvents folds domain.Transitions into looplab/fsm descriptors. Entries
// sharing an event and destination become one descriptor with several
// sources (EventFail leaves both pending and polling).
var jobEvents = buildJobEvents(domain.Transitions)

func buildJobEvents(transitions []domain.Transition) []loopfsm.EventDesc {
	type key struct {
		event domain.JobEvent
		dst   domain.JobState
	}
	sources := make(map[key][]string)
	var order []key

	for _, tr := range transitions {
		k := key{event: tr.Event, dst: tr.Dst}
		if _, seen := sources[k]; !seen {
			order = append(order, k)
		}
		sources[k] = append(sources[k], string(tr.Src))
	}

	descs := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		descs = append(descs, loopfsm.EventDesc{
			Name: string(k.event),
			Src:  sources[k],
			Dst:  string(k.dst),
		})
	}
	return descs
}

// Validator checks activation job transitions with looplab/fsm. The FSM is
// stateful, so each Apply seeds a fresh machine with the job's current state
// and the job itself stays the owner of its state.
type Validator struct{}

// New creates an FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply returns the state event leads to from current, or a
// *domain.TransitionError when the event is not allowed there.
func (v *Validator) Apply(ctx context.Context, current domain.JobState, event domain.JobEvent) (domain.JobState, error) {
	machine := loopfsm.NewFSM(string(current), jobEvents, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) {
			return "", &domain.TransitionError{Event: event, Current: current}
		}
		return "", err
	}

	return domain.JobState(machine.Current()), nil
}
