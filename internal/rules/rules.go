// Package rules evaluates declarative detection rules against canonical
// events. Rules come from configuration and are evaluated independently per
// event, in configured order; an event may trigger any number of them.
package rules

import (
	"strings"

	"github.com/your-org/logwarden/internal/model"
)

// Engine holds an ordered rule set.
type Engine struct {
	rules []model.Rule
}

// New creates an engine over the configured rules. The slice is not copied;
// rules are never mutated after load.
func New(rules []model.Rule) *Engine {
	return &Engine{rules: rules}
}

// Evaluate returns the rules that match the event, in configured order.
func (e *Engine) Evaluate(ev model.CanonicalEvent) []model.Rule {
	var matched []model.Rule
	for _, r := range e.rules {
		if Matches(r, ev) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Matches reports whether one rule fires for the event. A rule with no
// constraints matches everything.
func Matches(r model.Rule, ev model.CanonicalEvent) bool {
	if r.When.Category != "" && ev.Category != r.When.Category {
		return false
	}
	if c := r.When.Contains; c != nil {
		return containsMatch(c, ev)
	}
	return true
}

func containsMatch(c *model.ContainsSpec, ev model.CanonicalEvent) bool {
	value := strings.ToLower(FieldValue(ev, c.Field))

	for _, want := range c.All {
		if !strings.Contains(value, strings.ToLower(want)) {
			return false
		}
	}

	// A nil Any means the clause was omitted and passes vacuously. A present
	// but empty list offers no satisfiable candidate, so it never matches.
	if c.Any == nil {
		return true
	}
	for _, want := range c.Any {
		if strings.Contains(value, strings.ToLower(want)) {
			return true
		}
	}
	return false
}

// FieldValue resolves a rule field name to the event's value. Unknown or
// unset fields resolve to the empty string, which fails any contains clause.
func FieldValue(ev model.CanonicalEvent, field string) string {
	switch field {
	case "time":
		return ev.Time
	case "category":
		return ev.Category
	case "operationName":
		return ev.OperationName
	case "requestURI":
		return ev.RequestURI
	case "requestURIRedacted":
		return ev.RequestURIRedacted
	case "callerIP":
		return ev.CallerIP
	case "userAgent":
		return ev.UserAgent
	case "statusCode":
		return ev.StatusCode
	case "authType":
		return ev.AuthType
	case "resourceID":
		return ev.ResourceID
	default:
		return ""
	}
}
