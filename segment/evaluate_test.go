package segment

import "testing"

func attrLeaf(key string, op Operator, value any) *Node {
	return &Node{Root: RootAttribute, Key: key, Operator: op, Value: value}
}

func proUserCtx() Context {
	return Context{
		EnvironmentID:  "env-1",
		PersonID:       "person-1",
		UserID:         "user-42",
		Attributes:     map[string]string{"plan": "pro", "company": "acme"},
		ActionClassIDs: []string{"ac-signup", "ac-invite"},
		Device:         DeviceDesktop,
	}
}

func TestEvaluate_AttributeEquals(t *testing.T) {
	filter := attrLeaf("plan", OpEquals, "pro")

	if !Evaluate(proUserCtx(), filter) {
		t.Error("plan=pro should match equals pro")
	}

	ctx := proUserCtx()
	ctx.Attributes["plan"] = "free"
	if Evaluate(ctx, filter) {
		t.Error("plan=free should not match equals pro")
	}
}

func TestEvaluate_MissingAttribute(t *testing.T) {
	ctx := Context{Attributes: map[string]string{}}

	// Absence makes equals false, not an error.
	if Evaluate(ctx, attrLeaf("plan", OpEquals, "pro")) {
		t.Error("equals on a missing attribute must be false")
	}

	// Absence satisfies notEquals.
	if !Evaluate(ctx, attrLeaf("plan", OpNotEquals, "pro")) {
		t.Error("notEquals on a missing attribute must be true")
	}

	if Evaluate(ctx, attrLeaf("plan", OpIsSet, nil)) {
		t.Error("isSet on a missing attribute must be false")
	}
	if !Evaluate(ctx, attrLeaf("plan", OpIsNotSet, nil)) {
		t.Error("isNotSet on a missing attribute must be true")
	}
}

func TestEvaluate_StringOperators(t *testing.T) {
	ctx := Context{Attributes: map[string]string{"email": "jane@acme.dev"}}

	tests := []struct {
		name string
		node *Node
		want bool
	}{
		{"contains match", attrLeaf("email", OpContains, "@acme"), true},
		{"contains miss", attrLeaf("email", OpContains, "@other"), false},
		{"notContains", attrLeaf("email", OpNotContains, "@other"), true},
		{"startsWith", attrLeaf("email", OpStartsWith, "jane"), true},
		{"endsWith", attrLeaf("email", OpEndsWith, ".dev"), true},
		{"endsWith miss", attrLeaf("email", OpEndsWith, ".com"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(ctx, tt.node); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_NumericValuesMatchStringAttributes(t *testing.T) {
	ctx := Context{Attributes: map[string]string{"seats": "30"}}

	// Filter values arrive as float64 after JSON decoding.
	if !Evaluate(ctx, attrLeaf("seats", OpEquals, float64(30))) {
		t.Error("whole float filter value should match the stored string")
	}
}

func TestEvaluate_Actions(t *testing.T) {
	ctx := proUserCtx()

	performed := &Node{Root: RootAction, Key: "ac-signup", Operator: OpEquals}
	if !Evaluate(ctx, performed) {
		t.Error("performed action should match")
	}

	notPerformed := &Node{Root: RootAction, Key: "ac-churn", Operator: OpEquals}
	if Evaluate(ctx, notPerformed) {
		t.Error("unperformed action should not match")
	}

	negated := &Node{Root: RootAction, Key: "ac-churn", Operator: OpNotEquals}
	if !Evaluate(ctx, negated) {
		t.Error("notEquals on an unperformed action should match")
	}
}

func TestEvaluate_DeviceAndPerson(t *testing.T) {
	ctx := proUserCtx()

	if !Evaluate(ctx, &Node{Root: RootDevice, Operator: OpEquals, Value: "desktop"}) {
		t.Error("desktop context should match device equals desktop")
	}
	if Evaluate(ctx, &Node{Root: RootDevice, Operator: OpEquals, Value: "phone"}) {
		t.Error("desktop context should not match device equals phone")
	}

	if !Evaluate(ctx, &Node{Root: RootPerson, Operator: OpIsSet}) {
		t.Error("identified person should match userId isSet")
	}

	anon := ctx
	anon.UserID = ""
	if Evaluate(anon, &Node{Root: RootPerson, Operator: OpIsSet}) {
		t.Error("anonymous person should not match userId isSet")
	}
}

func TestEvaluate_UnknownOperatorFailsClosed(t *testing.T) {
	ctx := proUserCtx()

	if Evaluate(ctx, attrLeaf("plan", Operator("matchesRegex"), ".*")) {
		t.Error("unknown operator must evaluate false")
	}
	if Evaluate(ctx, &Node{Root: Root("weird"), Operator: OpEquals, Value: "x"}) {
		t.Error("unknown root must evaluate false")
	}
}

func TestEvaluate_Combinators(t *testing.T) {
	ctx := proUserCtx()

	a := attrLeaf("plan", OpEquals, "pro")       // true
	b := attrLeaf("company", OpEquals, "acme")   // true
	c := attrLeaf("company", OpEquals, "globex") // false

	and := func(children ...*Node) *Node { return &Node{Connector: ConnectorAnd, Children: children} }
	or := func(children ...*Node) *Node { return &Node{Connector: ConnectorOr, Children: children} }

	pairs := [][2]*Node{{a, b}, {a, c}, {c, a}, {c, c}}
	for _, pair := range pairs {
		x, y := pair[0], pair[1]

		if got, want := Evaluate(ctx, and(x, y)), Evaluate(ctx, x) && Evaluate(ctx, y); got != want {
			t.Errorf("and(%v): got %v, want %v", pair, got, want)
		}
		if got, want := Evaluate(ctx, or(x, y)), Evaluate(ctx, x) || Evaluate(ctx, y); got != want {
			t.Errorf("or(%v): got %v, want %v", pair, got, want)
		}
	}

	// Nested: (plan=pro AND (company=globex OR company=acme))
	nested := and(a, or(c, b))
	if !Evaluate(ctx, nested) {
		t.Error("nested tree should match")
	}
}

func TestEvaluate_EmptyTreesMatchEveryone(t *testing.T) {
	ctx := Context{}

	if !Evaluate(ctx, nil) {
		t.Error("nil tree must match everyone")
	}
	if !Evaluate(ctx, &Node{Connector: ConnectorAnd}) {
		t.Error("empty and group must match everyone")
	}
	if !Evaluate(ctx, &Node{Connector: ConnectorOr}) {
		t.Error("empty or group must match everyone")
	}
}
