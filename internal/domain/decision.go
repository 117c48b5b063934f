package domain

import (
	"fmt"
	"strings"
)

// DecisionKind enumerates what a caller may ask of a thread.
type DecisionKind string

const (
	DecisionNewMessage DecisionKind = "NEW_MESSAGE"
	DecisionApprove    DecisionKind = "APPROVE"
	DecisionReject     DecisionKind = "REJECT"
)

// Decision is one caller request against a thread.
type Decision struct {
	Kind DecisionKind
	Text string
}

// NewMessage builds a NEW_MESSAGE decision.
func NewMessage(text string) Decision {
	return Decision{Kind: DecisionNewMessage, Text: text}
}

// Approve builds an APPROVE decision.
func Approve() Decision {
	return Decision{Kind: DecisionApprove}
}

// Reject builds a REJECT decision.
func Reject() Decision {
	return Decision{Kind: DecisionReject}
}

// ParseAction converts the wire action value into a decision.
func ParseAction(s string) (Decision, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(DecisionApprove):
		return Approve(), nil
	case string(DecisionReject):
		return Reject(), nil
	default:
		return Decision{}, fmt.Errorf("unknown action %q (valid: APPROVE, REJECT)", s)
	}
}
