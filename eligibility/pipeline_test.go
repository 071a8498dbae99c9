package eligibility

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/goliatone/go-survey-targeting/cache"
	"github.com/goliatone/go-survey-targeting/segment"
	"github.com/goliatone/go-survey-targeting/store"
	"github.com/goliatone/go-survey-targeting/tagging"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeSurveyReader struct {
	surveys []*store.Survey
	calls   int
}

func (f *fakeSurveyReader) ListSurveys(ctx context.Context, environmentID string) ([]*store.Survey, error) {
	f.calls++
	return f.surveys, nil
}

type fakeDisplayReader struct {
	displays []*store.Display
	calls    int
}

func (f *fakeDisplayReader) ListDisplays(ctx context.Context, personID string) ([]*store.Display, error) {
	f.calls++
	return f.displays, nil
}

type fakePersonReader struct {
	person  *store.Person
	actions []string
}

func (f *fakePersonReader) GetPerson(ctx context.Context, id string) (*store.Person, error) {
	if f.person == nil {
		return &store.Person{ID: id, EnvironmentID: "env-1"}, nil
	}
	return f.person, nil
}

func (f *fakePersonReader) PerformedActionClassIDs(ctx context.Context, personID string) ([]string, error) {
	return f.actions, nil
}

// passthroughCache invokes the fetch on every call and records what would
// have been cached, so the pipeline logic stays observable per invocation.
type passthroughCache struct {
	lastKey  string
	lastTags []string
}

func (p *passthroughCache) GetOrFetch(ctx context.Context, key string, tags []string, ttl time.Duration, fetchFn any) (any, error) {
	p.lastKey = key
	p.lastTags = tags

	results := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})
	if !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

func (p *passthroughCache) InvalidateTags(ctx context.Context, tags []string) error { return nil }
func (p *passthroughCache) Delete(ctx context.Context, key string) error            { return nil }

func liveSurvey(id string, option store.DisplayOption) *store.Survey {
	return &store.Survey{
		ID:            id,
		Name:          "survey " + id,
		Type:          store.TypeApp,
		EnvironmentID: "env-1",
		Status:        store.StatusInProgress,
		DisplayOption: option,
		CreatedAt:     testNow.Add(-30 * 24 * time.Hour),
	}
}

func displayAt(surveyID string, age time.Duration, responseID *string) *store.Display {
	return &store.Display{
		ID:         "d-" + surveyID,
		SurveyID:   surveyID,
		PersonID:   "person-1",
		CreatedAt:  testNow.Add(-age),
		ResponseID: responseID,
	}
}

func newTestPipeline(surveys *fakeSurveyReader, displays *fakeDisplayReader, people *fakePersonReader, opts Options) *Pipeline {
	p := NewPipeline(surveys, displays, people, &passthroughCache{}, cache.NewDefaultKeySerializer(), opts)
	p.now = func() time.Time { return testNow }
	return p
}

func structuredRequest() Request {
	return Request{
		EnvironmentID:   "env-1",
		PersonID:        "person-1",
		Device:          segment.DeviceDesktop,
		ProtocolVersion: "2.0",
	}
}

func surveyIDs(surveys []*store.Survey) []string {
	ids := make([]string, len(surveys))
	for i, s := range surveys {
		ids[i] = s.ID
	}
	return ids
}

func TestEligibleSurveys_DisplayOnce(t *testing.T) {
	responseID := "r-1"
	surveys := &fakeSurveyReader{surveys: []*store.Survey{
		liveSurvey("s-once", store.DisplayOnce),
		liveSurvey("s-respond", store.RespondMultiple),
	}}
	displays := &fakeDisplayReader{displays: []*store.Display{
		displayAt("s-once", 2*time.Hour, &responseID),
	}}

	p := newTestPipeline(surveys, displays, &fakePersonReader{}, Options{})
	got, err := p.EligibleSurveys(context.Background(), structuredRequest())
	if err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}

	want := []string{"s-respond"}
	if !reflect.DeepEqual(surveyIDs(got), want) {
		t.Errorf("eligible = %v, want %v", surveyIDs(got), want)
	}
}

func TestEligibleSurveys_DisplayMultiple(t *testing.T) {
	responseID := "r-1"
	surveys := &fakeSurveyReader{surveys: []*store.Survey{
		liveSurvey("s-answered", store.DisplayMultiple),
		liveSurvey("s-shown", store.DisplayMultiple),
	}}
	displays := &fakeDisplayReader{displays: []*store.Display{
		displayAt("s-answered", 2*time.Hour, &responseID),
		displayAt("s-shown", 2*time.Hour, nil),
	}}

	p := newTestPipeline(surveys, displays, &fakePersonReader{}, Options{})
	got, err := p.EligibleSurveys(context.Background(), structuredRequest())
	if err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}

	// A display without a response does not stop displayMultiple.
	want := []string{"s-shown"}
	if !reflect.DeepEqual(surveyIDs(got), want) {
		t.Errorf("eligible = %v, want %v", surveyIDs(got), want)
	}
}

func TestEligibleSurveys_RecontactWindow(t *testing.T) {
	seven := 7

	tests := []struct {
		name          string
		recontactDays *int
		defaultDays   *int
		displaySurvey string
		lastDisplay   time.Duration
		noDisplays    bool
		wantEligible  bool
	}{
		// A survey's own window counts from the last display of that survey.
		{"own window, inside", &seven, nil, "s-1", 3 * 24 * time.Hour, false, false},
		{"own window, outside", &seven, nil, "s-1", 10 * 24 * time.Hour, false, true},
		{"own window, exactly at boundary", &seven, nil, "s-1", 7 * 24 * time.Hour, false, true},
		{"own window ignores other surveys", &seven, nil, "s-other", time.Hour, false, true},
		{"no displays at all", &seven, nil, "", 0, true, true},
		// The default window counts from the last display of any survey.
		{"default window, inside", nil, &seven, "s-other", 3 * 24 * time.Hour, false, false},
		{"default window, outside", nil, &seven, "s-other", 10 * 24 * time.Hour, false, true},
		{"no window configured", nil, nil, "s-other", time.Hour, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			survey := liveSurvey("s-1", store.RespondMultiple)
			survey.RecontactDays = tt.recontactDays

			displays := &fakeDisplayReader{}
			if !tt.noDisplays {
				displays.displays = []*store.Display{displayAt(tt.displaySurvey, tt.lastDisplay, nil)}
			}

			p := newTestPipeline(
				&fakeSurveyReader{surveys: []*store.Survey{survey}},
				displays,
				&fakePersonReader{},
				Options{DefaultRecontactDays: tt.defaultDays},
			)

			got, err := p.EligibleSurveys(context.Background(), structuredRequest())
			if err != nil {
				t.Fatalf("EligibleSurveys failed: %v", err)
			}
			if (len(got) == 1) != tt.wantEligible {
				t.Errorf("eligible = %v, want eligible %v", surveyIDs(got), tt.wantEligible)
			}
		})
	}
}

func segmentedSurvey(id string, filters *segment.Node) *store.Survey {
	s := liveSurvey(id, store.RespondMultiple)
	segmentID := "seg-" + id
	s.SegmentID = &segmentID
	s.Segment = &store.Segment{
		ID:            segmentID,
		Title:         id,
		EnvironmentID: "env-1",
		IsPrivate:     true,
		Filters:       filters,
	}
	return s
}

func TestEligibleSurveys_SegmentEvaluation(t *testing.T) {
	proFilter := &segment.Node{
		Connector: segment.ConnectorAnd,
		Children: []*segment.Node{
			{Root: segment.RootAttribute, Key: "plan", Operator: segment.OpEquals, Value: "pro"},
		},
	}
	surveys := &fakeSurveyReader{surveys: []*store.Survey{segmentedSurvey("s-pro", proFilter)}}

	proPerson := &fakePersonReader{person: &store.Person{
		ID: "person-1", EnvironmentID: "env-1",
		Attributes: map[string]string{"plan": "pro"},
	}}
	freePerson := &fakePersonReader{person: &store.Person{
		ID: "person-1", EnvironmentID: "env-1",
		Attributes: map[string]string{"plan": "free"},
	}}

	p := newTestPipeline(surveys, &fakeDisplayReader{}, proPerson, Options{})
	got, err := p.EligibleSurveys(context.Background(), structuredRequest())
	if err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("pro user should match, got %v", surveyIDs(got))
	}

	p = newTestPipeline(surveys, &fakeDisplayReader{}, freePerson, Options{})
	got, err = p.EligibleSurveys(context.Background(), structuredRequest())
	if err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("free user should not match, got %v", surveyIDs(got))
	}
}

func TestEligibleSurveys_LegacyDropsUntranslatable(t *testing.T) {
	flatFilter := &segment.Node{
		Connector: segment.ConnectorAnd,
		Children: []*segment.Node{
			{Root: segment.RootAttribute, Key: "plan", Operator: segment.OpEquals, Value: "pro"},
		},
	}
	orFilter := &segment.Node{
		Connector: segment.ConnectorOr,
		Children: []*segment.Node{
			{Root: segment.RootAttribute, Key: "plan", Operator: segment.OpEquals, Value: "pro"},
		},
	}
	surveys := &fakeSurveyReader{surveys: []*store.Survey{
		segmentedSurvey("s-flat", flatFilter),
		segmentedSurvey("s-or", orFilter),
	}}
	people := &fakePersonReader{person: &store.Person{
		ID: "person-1", EnvironmentID: "env-1",
		Attributes: map[string]string{"plan": "pro"},
	}}

	legacy := Request{EnvironmentID: "env-1", PersonID: "person-1", Device: segment.DeviceDesktop}

	p := newTestPipeline(surveys, &fakeDisplayReader{}, people, Options{})
	got, err := p.EligibleSurveys(context.Background(), legacy)
	if err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}
	want := []string{"s-flat"}
	if !reflect.DeepEqual(surveyIDs(got), want) {
		t.Errorf("legacy eligible = %v, want %v", surveyIDs(got), want)
	}

	// The same person on the structured protocol sees both surveys.
	got, err = p.EligibleSurveys(context.Background(), structuredRequest())
	if err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("structured eligible = %v, want both surveys", surveyIDs(got))
	}
}

func TestEligibleSurveys_UnknownDisplayOption(t *testing.T) {
	surveys := &fakeSurveyReader{surveys: []*store.Survey{
		liveSurvey("s-broken", store.DisplayOption("always")),
	}}

	p := newTestPipeline(surveys, &fakeDisplayReader{}, &fakePersonReader{}, Options{})
	_, err := p.EligibleSurveys(context.Background(), structuredRequest())

	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if confErr.SurveyID != "s-broken" {
		t.Errorf("error names survey %q, want s-broken", confErr.SurveyID)
	}
}

func TestEligibleSurveys_OnlyLiveSurveys(t *testing.T) {
	draft := liveSurvey("s-draft", store.RespondMultiple)
	draft.Status = store.StatusDraft
	paused := liveSurvey("s-paused", store.RespondMultiple)
	paused.Status = store.StatusPaused

	surveys := &fakeSurveyReader{surveys: []*store.Survey{
		draft,
		liveSurvey("s-live", store.RespondMultiple),
		paused,
	}}

	p := newTestPipeline(surveys, &fakeDisplayReader{}, &fakePersonReader{}, Options{})
	got, err := p.EligibleSurveys(context.Background(), structuredRequest())
	if err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}

	want := []string{"s-live"}
	if !reflect.DeepEqual(surveyIDs(got), want) {
		t.Errorf("eligible = %v, want %v", surveyIDs(got), want)
	}
}

func TestEligibleSurveys_EmptyEnvironmentShortCircuits(t *testing.T) {
	draft := liveSurvey("s-draft", store.RespondMultiple)
	draft.Status = store.StatusDraft

	surveys := &fakeSurveyReader{surveys: []*store.Survey{draft}}
	displays := &fakeDisplayReader{}

	p := newTestPipeline(surveys, displays, &fakePersonReader{}, Options{})
	got, err := p.EligibleSurveys(context.Background(), structuredRequest())
	if err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}

	if len(got) != 0 {
		t.Errorf("expected no surveys, got %v", surveyIDs(got))
	}
	if displays.calls != 0 {
		t.Error("display history must not be read when no survey is live")
	}
}

func TestEligibleSurveys_PreservesOrder(t *testing.T) {
	surveys := &fakeSurveyReader{surveys: []*store.Survey{
		liveSurvey("s-1", store.RespondMultiple),
		liveSurvey("s-2", store.RespondMultiple),
		liveSurvey("s-3", store.RespondMultiple),
	}}

	p := newTestPipeline(surveys, &fakeDisplayReader{}, &fakePersonReader{}, Options{})
	got, err := p.EligibleSurveys(context.Background(), structuredRequest())
	if err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}

	want := []string{"s-1", "s-2", "s-3"}
	if !reflect.DeepEqual(surveyIDs(got), want) {
		t.Errorf("order = %v, want %v", surveyIDs(got), want)
	}
}

func TestEligibleSurveys_CacheTags(t *testing.T) {
	surveys := &fakeSurveyReader{surveys: []*store.Survey{liveSurvey("s-1", store.RespondMultiple)}}
	recorder := &passthroughCache{}

	p := NewPipeline(surveys, &fakeDisplayReader{}, &fakePersonReader{}, recorder, cache.NewDefaultKeySerializer(), Options{})
	p.now = func() time.Time { return testNow }

	if _, err := p.EligibleSurveys(context.Background(), structuredRequest()); err != nil {
		t.Fatalf("EligibleSurveys failed: %v", err)
	}

	for _, want := range []string{
		tagging.ByEnvironmentID(tagging.KindSurvey, "env-1"),
		tagging.ByEnvironmentID(tagging.KindSegment, "env-1"),
		tagging.ByPersonID(tagging.KindDisplay, "person-1"),
		tagging.ByPersonID(tagging.KindAction, "person-1"),
		tagging.ByID(tagging.KindPerson, "person-1"),
	} {
		found := false
		for _, tag := range recorder.lastTags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing tag %q in %v", want, recorder.lastTags)
		}
	}
}

func TestEligibleLegacySurveys_ShapesViews(t *testing.T) {
	flatFilter := &segment.Node{
		Connector: segment.ConnectorAnd,
		Children: []*segment.Node{
			{Root: segment.RootAttribute, Key: "plan", Operator: segment.OpEquals, Value: "pro"},
		},
	}
	surveys := &fakeSurveyReader{surveys: []*store.Survey{segmentedSurvey("s-1", flatFilter)}}
	people := &fakePersonReader{person: &store.Person{
		ID: "person-1", EnvironmentID: "env-1",
		Attributes: map[string]string{"plan": "pro"},
	}}

	p := newTestPipeline(surveys, &fakeDisplayReader{}, people, Options{})
	views, err := p.EligibleLegacySurveys(context.Background(), Request{
		EnvironmentID: "env-1", PersonID: "person-1", Device: segment.DeviceDesktop,
	})
	if err != nil {
		t.Fatalf("EligibleLegacySurveys failed: %v", err)
	}

	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	view := views[0]
	if view.ID != "s-1" {
		t.Errorf("view id = %q, want s-1", view.ID)
	}
	if len(view.AttributeFilters) != 1 || view.AttributeFilters[0].AttributeClassName != "plan" {
		t.Errorf("unexpected attribute filters: %+v", view.AttributeFilters)
	}
}
