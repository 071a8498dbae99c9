package segment

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Context carries everything known about a person at evaluation time.
type Context struct {
	EnvironmentID string
	PersonID      string
	// UserID is the external identifier supplied by the integrating app,
	// empty when the person is anonymous.
	UserID     string
	Attributes map[string]string
	// ActionClassIDs are the action classes the person has performed.
	ActionClassIDs []string
	Device         DeviceType
}

func (c Context) performed(actionClassID string) bool {
	for _, id := range c.ActionClassIDs {
		if id == actionClassID {
			return true
		}
	}
	return false
}

// Evaluate walks the filter tree and reports whether the person matches.
// A nil tree and an empty group both match everyone. Unknown operators and
// roots fail closed: the predicate is false, never an error, so one malformed
// filter cannot take down an eligibility query.
//
// Missing attributes: equals on an absent attribute is false; notEquals on an
// absent attribute is true (absence satisfies "not equal").
func Evaluate(ctx Context, n *Node) bool {
	if n == nil {
		return true
	}

	if n.IsGroup() {
		return evaluateGroup(ctx, n)
	}

	switch n.Root {
	case RootAttribute:
		return evaluateAttribute(ctx, n)
	case RootAction:
		return evaluateAction(ctx, n)
	case RootDevice:
		return evaluateString(string(ctx.Device), true, n.Operator, n.Value)
	case RootPerson:
		return evaluateString(ctx.UserID, ctx.UserID != "", n.Operator, n.Value)
	default:
		return false
	}
}

func evaluateGroup(ctx Context, n *Node) bool {
	if len(n.Children) == 0 {
		return true
	}

	switch n.Connector {
	case ConnectorAnd:
		for _, child := range n.Children {
			if !Evaluate(ctx, child) {
				return false
			}
		}
		return true
	case ConnectorOr:
		for _, child := range n.Children {
			if Evaluate(ctx, child) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func evaluateAttribute(ctx Context, n *Node) bool {
	value, present := ctx.Attributes[n.Key]
	return evaluateString(value, present, n.Operator, n.Value)
}

// evaluateAction treats the predicate as membership in the performed set.
// Negating operators test absence; anything unrecognized fails closed.
func evaluateAction(ctx Context, n *Node) bool {
	switch n.Operator {
	case OpEquals, OpIsSet:
		return ctx.performed(n.Key)
	case OpNotEquals, OpIsNotSet:
		return !ctx.performed(n.Key)
	default:
		return false
	}
}

// evaluateString applies op against a context value that may be absent.
func evaluateString(value string, present bool, op Operator, expected any) bool {
	want := stringify(expected)

	switch op {
	case OpEquals:
		return present && value == want
	case OpNotEquals:
		return !present || value != want
	case OpContains:
		return present && strings.Contains(value, want)
	case OpNotContains:
		return present && !strings.Contains(value, want)
	case OpStartsWith:
		return present && strings.HasPrefix(value, want)
	case OpEndsWith:
		return present && strings.HasSuffix(value, want)
	case OpIsSet:
		return present
	case OpIsNotSet:
		return !present
	default:
		return false
	}
}

// stringify renders a filter value the way person attributes are stored.
// JSON unmarshaling hands us float64 for every number; whole floats render
// without a fraction so `30` matches the attribute "30".
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}
