package tagging

import (
	"reflect"
	"testing"
)

func TestTagConstructors_Deterministic(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"by id", ByID(KindSurvey, "s1"), "surveys-s1"},
		{"by environment", ByEnvironmentID(KindSurvey, "env1"), "environments-env1-surveys"},
		{"by action class", ByActionClassID(KindSurvey, "ac1"), "actionClasses-ac1-surveys"},
		{"by segment", BySegmentID(KindSurvey, "seg1"), "segments-seg1-surveys"},
		{"by person", ByPersonID(KindDisplay, "p1"), "people-p1-displays"},
		{"by survey", BySurveyID(KindDisplay, "s1"), "surveys-s1-displays"},
		{"all", All(KindSegment), "segments-all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTagConstructors_RepeatedCallsMatch(t *testing.T) {
	// Invalidation-side lookups only work when both sides build the exact
	// same string for the same inputs.
	if ByID(KindSurvey, "abc") != ByID(KindSurvey, "abc") {
		t.Fatal("ByID is not stable across calls")
	}
	if ByEnvironmentID(KindSegment, "e") != ByEnvironmentID(KindSegment, "e") {
		t.Fatal("ByEnvironmentID is not stable across calls")
	}
}

func TestMutation_Tags(t *testing.T) {
	m := Mutation{
		Kind:           KindSurvey,
		ID:             "s1",
		EnvironmentID:  "env1",
		SegmentID:      "seg1",
		ActionClassIDs: []string{"ac1", "ac2", ""},
	}

	want := []string{
		"actionClasses-ac1-surveys",
		"actionClasses-ac2-surveys",
		"environments-env1-surveys",
		"segments-seg1-surveys",
		"surveys-all",
		"surveys-s1",
	}

	got := m.Tags()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tags() = %v, want %v", got, want)
	}

	// Same descriptor must always yield the identical slice.
	if !reflect.DeepEqual(m.Tags(), got) {
		t.Error("Tags() is not deterministic")
	}
}

func TestMutation_Tags_MinimalDescriptor(t *testing.T) {
	m := Mutation{Kind: KindDisplay, PersonID: "p1"}

	want := []string{"displays-all", "people-p1-displays"}
	if got := m.Tags(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tags() = %v, want %v", got, want)
	}
}

func TestMutation_Tags_Disjoint(t *testing.T) {
	a := Mutation{Kind: KindSurvey, ID: "s1", EnvironmentID: "env1"}.Tags()
	b := Mutation{Kind: KindSegment, ID: "seg1", EnvironmentID: "env2"}.Tags()

	seen := make(map[string]struct{}, len(a))
	for _, tag := range a {
		seen[tag] = struct{}{}
	}
	for _, tag := range b {
		if _, ok := seen[tag]; ok {
			t.Errorf("unrelated mutations share tag %q", tag)
		}
	}
}
