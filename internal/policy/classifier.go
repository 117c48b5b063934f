// Package policy classifies proposed agent actions as auto-approvable or
// requiring external sign-off.
//
// Classification is default-deny: an action name that is not explicitly listed
// as safe is sensitive, so a newly added tool never ships auto-approved by omission.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ashureev/retention-agent/internal/domain"
)

// Sensitivity tags an action by reversibility and external visibility.
type Sensitivity int

const (
	// Sensitive actions are irreversible or externally visible and need approval.
	Sensitive Sensitivity = iota
	// Safe actions are read-only and are resumed automatically.
	Safe
)

// String returns the sensitivity name.
func (s Sensitivity) String() string {
	switch s {
	case Safe:
		return "SAFE"
	case Sensitive:
		return "SENSITIVE"
	default:
		return "unknown"
	}
}

// Tool names known to the retention agent.
const (
	ToolFetchCustomerBooking   = "fetch_customer_booking"
	ToolGetCustomerRiskScore   = "get_customer_risk_score"
	ToolSearchRetentionPolicy  = "search_retention_policy"
	ToolSendRetentionEmail     = "send_retention_email"
	ToolRequestManagerApproval = "request_manager_approval"
)

var (
	// ErrOverlap is returned when a name is listed as both safe and sensitive.
	ErrOverlap = errors.New("action listed as both safe and sensitive")
	// ErrBlankName is returned for empty action names in a table.
	ErrBlankName = errors.New("action name is blank")
)

var (
	defaultSafe = []string{
		ToolFetchCustomerBooking,
		ToolGetCustomerRiskScore,
		ToolSearchRetentionPolicy,
	}
	defaultSensitive = []string{
		ToolSendRetentionEmail,
		ToolRequestManagerApproval,
	}
)

// Classifier maps action names to a sensitivity. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	safe      map[string]struct{}
	sensitive map[string]struct{}
}

// Default returns the classifier for the built-in retention tool set.
func Default() *Classifier {
	c, err := New(defaultSafe, defaultSensitive)
	if err != nil {
		panic("policy: invalid built-in table: " + err.Error())
	}
	return c
}

// New builds a classifier from disjoint safe and sensitive lists.
func New(safe, sensitive []string) (*Classifier, error) {
	c := &Classifier{
		safe:      make(map[string]struct{}, len(safe)),
		sensitive: make(map[string]struct{}, len(sensitive)),
	}
	for _, name := range safe {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("safe list: %w", ErrBlankName)
		}
		c.safe[name] = struct{}{}
	}
	for _, name := range sensitive {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("sensitive list: %w", ErrBlankName)
		}
		if _, dup := c.safe[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrOverlap, name)
		}
		c.sensitive[name] = struct{}{}
	}
	return c, nil
}

// Classify returns the sensitivity of an action name. Unlisted names are Sensitive.
func (c *Classifier) Classify(name string) Sensitivity {
	if _, ok := c.safe[name]; ok {
		return Safe
	}
	return Sensitive
}

// IsSafe reports whether the action may be auto-approved.
func (c *Classifier) IsSafe(name string) bool {
	return c.Classify(name) == Safe
}

// RequiresApproval reports whether the action needs external sign-off.
func (c *Classifier) RequiresApproval(name string) bool {
	return c.Classify(name) == Sensitive
}

// IsKnown reports whether the name appears in either list.
func (c *Classifier) IsKnown(name string) bool {
	if _, ok := c.safe[name]; ok {
		return true
	}
	_, ok := c.sensitive[name]
	return ok
}

// FirstSensitive returns the first sensitive action, if any.
func (c *Classifier) FirstSensitive(actions []domain.Action) (domain.Action, bool) {
	for _, a := range actions {
		if c.Classify(a.Name) == Sensitive {
			return a, true
		}
	}
	return domain.Action{}, false
}

// Gate picks the action that gates a pause: the first sensitive action when
// present, otherwise the first proposed action.
func (c *Classifier) Gate(actions []domain.Action) (domain.Action, bool) {
	if a, ok := c.FirstSensitive(actions); ok {
		return a, true
	}
	if len(actions) == 0 {
		return domain.Action{}, false
	}
	return actions[0], true
}

// SafeNames returns the sorted safe list.
func (c *Classifier) SafeNames() []string {
	return sortedKeys(c.safe)
}

// SensitiveNames returns the sorted explicit sensitive list.
func (c *Classifier) SensitiveNames() []string {
	return sortedKeys(c.sensitive)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
