package testsupport

import (
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-survey-targeting/segment"
	"github.com/goliatone/go-survey-targeting/store"
)

// BaseTime anchors builder timestamps so fixtures stay reproducible.
var BaseTime = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

// NewSurvey builds a live app survey with defaults; mutate callbacks adjust
// individual fields.
func NewSurvey(mutate ...func(*store.Survey)) *store.Survey {
	s := &store.Survey{
		ID:            uuid.NewString(),
		CreatedAt:     BaseTime,
		UpdatedAt:     BaseTime,
		Name:          "Onboarding NPS",
		Type:          store.TypeApp,
		EnvironmentID: "env-test",
		Status:        store.StatusInProgress,
		DisplayOption: store.RespondMultiple,
		Questions: []store.Question{
			{ID: "q1", Type: "nps", Headline: "How likely are you to recommend us?", Required: true},
		},
	}
	for _, fn := range mutate {
		fn(s)
	}
	return s
}

// NewSegment builds a shared segment with a single attribute filter.
func NewSegment(mutate ...func(*store.Segment)) *store.Segment {
	seg := &store.Segment{
		ID:            uuid.NewString(),
		CreatedAt:     BaseTime,
		UpdatedAt:     BaseTime,
		Title:         "power users",
		EnvironmentID: "env-test",
		Filters: &segment.Node{
			Connector: segment.ConnectorAnd,
			Children: []*segment.Node{
				{Root: segment.RootAttribute, Key: "plan", Operator: segment.OpEquals, Value: "pro"},
			},
		},
	}
	for _, fn := range mutate {
		fn(seg)
	}
	return seg
}

// NewPerson builds an identified person with a pro plan.
func NewPerson(mutate ...func(*store.Person)) *store.Person {
	userID := "user-test"
	p := &store.Person{
		ID:            uuid.NewString(),
		CreatedAt:     BaseTime,
		EnvironmentID: "env-test",
		UserID:        &userID,
		Attributes:    map[string]string{"plan": "pro"},
	}
	for _, fn := range mutate {
		fn(p)
	}
	return p
}

// NewDisplay builds a display of survey to person at BaseTime.
func NewDisplay(surveyID, personID string, mutate ...func(*store.Display)) *store.Display {
	d := &store.Display{
		ID:        uuid.NewString(),
		CreatedAt: BaseTime,
		SurveyID:  surveyID,
		PersonID:  personID,
	}
	for _, fn := range mutate {
		fn(d)
	}
	return d
}

// NewActionClass builds a code action class.
func NewActionClass(mutate ...func(*store.ActionClass)) *store.ActionClass {
	ac := &store.ActionClass{
		ID:            uuid.NewString(),
		CreatedAt:     BaseTime,
		EnvironmentID: "env-test",
		Name:          "signed up",
		Type:          "code",
	}
	for _, fn := range mutate {
		fn(ac)
	}
	return ac
}
