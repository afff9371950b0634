package domain

import (
	"fmt"
	"time"
)

// JobState is the lifecycle state of an activation job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobPolling   JobState = "polling"
	JobSucceeded JobState = "succeeded"
	JobTimedOut  JobState = "timed_out"
	JobFailed    JobState = "failed"
)

// Terminal reports whether no further transition can leave the state.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobTimedOut || s == JobFailed
}

// JobEvent triggers an activation job state transition.
type JobEvent string

const (
	EventApplied    JobEvent = "applied"
	EventProcessing JobEvent = "processing"
	EventConverged  JobEvent = "converged"
	EventExhausted  JobEvent = "exhausted"
	EventFail       JobEvent = "fail"
)

// Transition defines a valid state change: an event moves a job from Src to Dst.
type Transition struct {
	Event JobEvent
	Src   JobState
	Dst   JobState
}

// Transitions defines every valid state change of an activation job.
// Consumed by the FSM adapter.
var Transitions = []Transition{
	{Event: EventApplied, Src: JobPending, Dst: JobSucceeded},
	{Event: EventProcessing, Src: JobPending, Dst: JobPolling},
	{Event: EventFail, Src: JobPending, Dst: JobFailed},
	{Event: EventConverged, Src: JobPolling, Dst: JobSucceeded},
	{Event: EventExhausted, Src: JobPolling, Dst: JobTimedOut},
	{Event: EventFail, Src: JobPolling, Dst: JobFailed},
}

// OutcomeKind classifies how an activation ended.
type OutcomeKind string

const (
	OutcomeAppliedImmediately OutcomeKind = "applied_immediately"
	OutcomeConverged          OutcomeKind = "converged"
	OutcomeTimedOut           OutcomeKind = "timed_out"
	OutcomeFailed             OutcomeKind = "failed"
)

// Outcome is the terminal result of an activation job.
type Outcome struct {
	Kind     OutcomeKind
	Reason   string
	Attempts int
}

func (o Outcome) String() string {
	if o.Kind == OutcomeFailed && o.Reason != "" {
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	}
	return string(o.Kind)
}

// ActivationRequest names the tenant and theme of a theme change.
type ActivationRequest struct {
	TenantID   string
	TenantSlug string
	ThemeID    string
	ThemeSlug  string
}

// ActivationJob tracks one in-memory theme activation. It is never persisted.
type ActivationJob struct {
	ID         string
	Request    ActivationRequest
	State      JobState
	Attempts   int
	Outcome    *Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}
