package domain

import "fmt"

// OutcomeStatus is the only vocabulary a caller sees.
type OutcomeStatus string

const (
	OutcomeCompleted      OutcomeStatus = "completed"
	OutcomeRequiresAction OutcomeStatus = "requires_action"
	OutcomeStopped        OutcomeStatus = "stopped"
	OutcomeError          OutcomeStatus = "error"
)

// ErrorKind distinguishes failure causes behind an error outcome.
type ErrorKind string

const (
	ErrorKindClientInput       ErrorKind = "client_input"
	ErrorKindEngineUnavailable ErrorKind = "engine_unavailable"
	ErrorKindInconsistentState ErrorKind = "inconsistent_state"
	ErrorKindIterationCeiling  ErrorKind = "iteration_ceiling"
	ErrorKindInternal          ErrorKind = "internal"
)

// RejectedReason is reported when the caller rejects a pending action.
const RejectedReason = "User rejected action."

// Outcome is the terminal result of one request.
type Outcome struct {
	Status    OutcomeStatus
	ThreadID  string
	Response  string
	Action    *Action
	Reason    string
	Message   string
	ErrorKind ErrorKind
}

// Completed reports a finished run.
func Completed(threadID, text string) Outcome {
	return Outcome{Status: OutcomeCompleted, ThreadID: threadID, Response: text}
}

// RequiresAction reports a SENSITIVE action awaiting external sign-off.
func RequiresAction(threadID string, action Action) Outcome {
	a := action.Clone()
	return Outcome{
		Status:   OutcomeRequiresAction,
		ThreadID: threadID,
		Action:   &a,
		Message:  fmt.Sprintf("Approval required for %s", action.Name),
	}
}

// Stopped reports a request that ended without advancing further.
func Stopped(threadID, reason string) Outcome {
	return Outcome{Status: OutcomeStopped, ThreadID: threadID, Reason: reason}
}

// Failed reports an error outcome.
func Failed(threadID string, kind ErrorKind, message string) Outcome {
	return Outcome{Status: OutcomeError, ThreadID: threadID, ErrorKind: kind, Message: message}
}
