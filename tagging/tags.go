// Package tagging builds the cache tags used to group derived results for
// bulk invalidation. Every tag is a pure function of an entity kind and a key
// value; the population side and the invalidation side call the same
// constructors, so the strings always match byte for byte.
package tagging

import (
	"fmt"
	"sort"
)

// Kind identifies an entity namespace inside the cache tag space.
type Kind string

const (
	KindSurvey      Kind = "surveys"
	KindSegment     Kind = "segments"
	KindDisplay     Kind = "displays"
	KindPerson      Kind = "people"
	KindActionClass Kind = "actionClasses"
	KindAction      Kind = "actions"
	KindResponse    Kind = "responses"
	KindEnvironment Kind = "environments"
)

// ByID tags every cached result derived from a single record.
func ByID(k Kind, id string) string {
	return fmt.Sprintf("%s-%s", k, id)
}

// ByEnvironmentID tags results scoped to all records of a kind in an environment.
func ByEnvironmentID(k Kind, environmentID string) string {
	return fmt.Sprintf("environments-%s-%s", environmentID, k)
}

// ByActionClassID tags results that depend on an action class relation,
// e.g. surveys triggered by it.
func ByActionClassID(k Kind, actionClassID string) string {
	return fmt.Sprintf("actionClasses-%s-%s", actionClassID, k)
}

// BySegmentID tags results that depend on a segment relation.
func BySegmentID(k Kind, segmentID string) string {
	return fmt.Sprintf("segments-%s-%s", segmentID, k)
}

// ByPersonID tags results that depend on a person relation, e.g. the person's
// display history.
func ByPersonID(k Kind, personID string) string {
	return fmt.Sprintf("people-%s-%s", personID, k)
}

// BySurveyID tags results that depend on a survey relation.
func BySurveyID(k Kind, surveyID string) string {
	return fmt.Sprintf("surveys-%s-%s", surveyID, k)
}

// All tags every cached result of a kind. Criteria-based bulk writes, where
// the affected records are unknown, invalidate through this tag.
func All(k Kind) string {
	return fmt.Sprintf("%s-all", k)
}

// Mutation describes an entity write in terms of the foreign keys it carries.
// Tags derives the complete set of tags whose cached entries must be
// considered stale after the write.
type Mutation struct {
	Kind           Kind
	ID             string
	EnvironmentID  string
	SegmentID      string
	PersonID       string
	SurveyID       string
	ActionClassIDs []string
}

// Tags returns the affected tag set, deduplicated and sorted so identical
// mutations always produce identical slices.
func (m Mutation) Tags() []string {
	set := map[string]struct{}{
		All(m.Kind): {},
	}
	if m.ID != "" {
		set[ByID(m.Kind, m.ID)] = struct{}{}
	}
	if m.EnvironmentID != "" {
		set[ByEnvironmentID(m.Kind, m.EnvironmentID)] = struct{}{}
	}
	if m.SegmentID != "" {
		set[BySegmentID(m.Kind, m.SegmentID)] = struct{}{}
	}
	if m.PersonID != "" {
		set[ByPersonID(m.Kind, m.PersonID)] = struct{}{}
	}
	if m.SurveyID != "" {
		set[BySurveyID(m.Kind, m.SurveyID)] = struct{}{}
	}
	for _, acID := range m.ActionClassIDs {
		if acID != "" {
			set[ByActionClassID(m.Kind, acID)] = struct{}{}
		}
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
