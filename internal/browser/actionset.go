// internal/browser/actionset.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ActionKind is the type of step in an ActionSet.
type ActionKind string

const (
	ActionType  ActionKind = "TYPE"
	ActionClick ActionKind = "CLICK"
)

// Action is one step of a scripted page interaction.
type Action struct {
	Kind    ActionKind `yaml:"action" json:"action"`
	Element string     `yaml:"element" json:"element"`
}

// ActionSet is an ordered list of steps replayed against a page. TYPE steps
// take their text from the values passed to PerformActionSet, in order.
type ActionSet []Action

// TypeAction returns a TYPE step for xpath.
func TypeAction(xpath string) Action { return Action{Kind: ActionType, Element: xpath} }

// ClickAction returns a CLICK step for xpath.
func ClickAction(xpath string) Action { return Action{Kind: ActionClick, Element: xpath} }

// TypeSteps counts the steps that consume a value.
func (a ActionSet) TypeSteps() int {
	n := 0
	for _, action := range a {
		if action.Kind == ActionType {
			n++
		}
	}
	return n
}

// Elements lists the selectors of every step.
func (a ActionSet) Elements() []string {
	out := make([]string, 0, len(a))
	for _, action := range a {
		out = append(out, action.Element)
	}
	return out
}

// actionTarget is what an ActionSet needs from a page.
type actionTarget interface {
	Type(ctx context.Context, xpath, text string) error
	Click(ctx context.Context, xpath string) error
}

// ActionError reports the failing step of an ActionSet.
type ActionError struct {
	Index  int
	Action Action
	Err    error
}

func (e *ActionError) Error() string {
	if e.Action.Element == "" {
		return fmt.Sprintf("action %d (%s): %v", e.Index, e.Action.Kind, e.Err)
	}
	return fmt.Sprintf("action %d (%s %s): %v", e.Index, e.Action.Kind, e.Action.Element, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func performActionSet(ctx context.Context, t actionTarget, logger *zap.Logger, set ActionSet, values ...string) error {
	next := 0
	for i, action := range set {
		if err := ctx.Err(); err != nil {
			return &ActionError{Index: i, Action: action, Err: err}
		}
		if action.Element == "" {
			return &ActionError{Index: i, Action: action, Err: fmt.Errorf("missing element")}
		}

		switch action.Kind {
		case ActionType:
			if next >= len(values) {
				return &ActionError{Index: i, Action: action, Err: fmt.Errorf("no value supplied for step")}
			}
			value := values[next]
			next++
			if err := t.Type(ctx, action.Element, value); err != nil {
				return &ActionError{Index: i, Action: action, Err: err}
			}
		case ActionClick:
			if err := t.Click(ctx, action.Element); err != nil {
				return &ActionError{Index: i, Action: action, Err: err}
			}
		default:
			return &ActionError{Index: i, Action: action, Err: fmt.Errorf("unknown action kind %q", action.Kind)}
		}
		logger.Debug("Performed action.", zap.Int("index", i), zap.String("kind", string(action.Kind)), zap.String("element", action.Element))
	}
	return nil
}

// XPathLiteral quotes s for use inside an XPath expression.
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
