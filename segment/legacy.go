package segment

import "errors"

// ErrNotTranslatable is returned when a filter tree uses constructs with no
// flat attribute-filter equivalent. Callers on the legacy protocol must treat
// the survey as ineligible rather than erroring.
var ErrNotTranslatable = errors.New("segment: filter has no flat attribute-filter equivalent")

// AttributeFilter is the flat targeting rule understood by SDK versions that
// predate structured filter trees.
type AttributeFilter struct {
	AttributeClassName string   `json:"attributeClassName"`
	Operator           Operator `json:"operator"`
	Value              string   `json:"value"`
}

// ToAttributeFilters translates a filter tree into a flat list of attribute
// filters with implicit AND semantics. Only a single attribute leaf, or one
// `and` group of attribute leaves using equals/notEquals, can be expressed
// that way; anything else returns ErrNotTranslatable.
func ToAttributeFilters(n *Node) ([]AttributeFilter, error) {
	if n == nil {
		return nil, nil
	}

	if !n.IsGroup() {
		filter, err := leafToAttributeFilter(n)
		if err != nil {
			return nil, err
		}
		return []AttributeFilter{filter}, nil
	}

	if n.Connector != ConnectorAnd {
		return nil, ErrNotTranslatable
	}

	filters := make([]AttributeFilter, 0, len(n.Children))
	for _, child := range n.Children {
		if child == nil || child.IsGroup() {
			return nil, ErrNotTranslatable
		}
		filter, err := leafToAttributeFilter(child)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}
	return filters, nil
}

func leafToAttributeFilter(n *Node) (AttributeFilter, error) {
	if n.Root != RootAttribute {
		return AttributeFilter{}, ErrNotTranslatable
	}
	if n.Operator != OpEquals && n.Operator != OpNotEquals {
		return AttributeFilter{}, ErrNotTranslatable
	}
	return AttributeFilter{
		AttributeClassName: n.Key,
		Operator:           n.Operator,
		Value:              stringify(n.Value),
	}, nil
}

// EvaluateAttributeFilters applies flat filters with AND semantics and the
// same missing-attribute policy as the structured evaluator.
func EvaluateAttributeFilters(ctx Context, filters []AttributeFilter) bool {
	for _, f := range filters {
		value, present := ctx.Attributes[f.AttributeClassName]
		if !evaluateString(value, present, f.Operator, f.Value) {
			return false
		}
	}
	return true
}
