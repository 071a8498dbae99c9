// Package segment implements audience targeting: a JSON-serializable boolean
// filter tree and a pure evaluator deciding whether a person matches it.
package segment

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Connector joins the children of a group node.
type Connector string

const (
	ConnectorAnd Connector = "and"
	ConnectorOr  Connector = "or"
)

// Operator compares a leaf predicate against the evaluation context.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpIsSet       Operator = "isSet"
	OpIsNotSet    Operator = "isNotSet"
)

// Root names what a leaf predicate inspects on the person.
type Root string

const (
	RootAttribute Root = "attribute"
	RootAction    Root = "action"
	RootDevice    Root = "device"
	RootPerson    Root = "person"
)

// DeviceType is the device class reported by the client SDK.
type DeviceType string

const (
	DevicePhone   DeviceType = "phone"
	DeviceDesktop DeviceType = "desktop"
)

// Node is one node of a filter tree: either a group (Connector set, Children
// populated) or a leaf predicate (Root and Operator set). The zero node is
// neither and fails validation.
type Node struct {
	Connector Connector `json:"connector,omitempty"`
	Children  []*Node   `json:"children,omitempty"`

	Root     Root     `json:"root,omitempty"`
	Key      string   `json:"key,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`
}

// IsGroup reports whether the node is a boolean combinator.
func (n *Node) IsGroup() bool {
	return n != nil && n.Connector != ""
}

var errAmbiguousNode = errors.New("node is both a group and a leaf")

// Validate checks the tree shape recursively. Group nodes may not carry leaf
// fields and vice versa; operators and roots must come from the known sets.
func (n *Node) Validate() error {
	if n == nil {
		return nil
	}

	if n.IsGroup() {
		if n.Root != "" || n.Operator != "" {
			return errAmbiguousNode
		}
		if err := validation.ValidateStruct(n,
			validation.Field(&n.Connector, validation.In(ConnectorAnd, ConnectorOr)),
		); err != nil {
			return err
		}
		for _, child := range n.Children {
			if child == nil {
				return errors.New("group contains nil child")
			}
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	}

	return validation.ValidateStruct(n,
		validation.Field(&n.Root, validation.Required,
			validation.In(RootAttribute, RootAction, RootDevice, RootPerson)),
		validation.Field(&n.Operator, validation.Required,
			validation.In(OpEquals, OpNotEquals, OpContains, OpNotContains,
				OpStartsWith, OpEndsWith, OpIsSet, OpIsNotSet)),
		validation.Field(&n.Key, validation.Required.When(n.Root == RootAttribute || n.Root == RootAction)),
	)
}
