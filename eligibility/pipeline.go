// Package eligibility decides which surveys a person should be offered. The
// decision pipeline runs cheap checks first and consults targeting segments
// last, and its results are cached under the tags of everything they were
// derived from.
package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-survey-targeting/cache"
	"github.com/goliatone/go-survey-targeting/segment"
	"github.com/goliatone/go-survey-targeting/store"
	"github.com/goliatone/go-survey-targeting/tagging"
)

// Mode selects the targeting protocol spoken by the requesting SDK.
type Mode int

const (
	// ModeStructured evaluates full filter trees.
	ModeStructured Mode = iota
	// ModeLegacy evaluates flat attribute filters; surveys whose segments
	// cannot be flattened are dropped.
	ModeLegacy
)

// Request identifies who is asking for surveys and on what protocol.
// ProtocolVersion is empty for SDKs that predate structured filters.
type Request struct {
	EnvironmentID   string
	PersonID        string
	Device          segment.DeviceType
	ProtocolVersion string
}

// Mode derives the evaluation mode from the protocol version.
func (r Request) Mode() Mode {
	if r.ProtocolVersion == "" {
		return ModeLegacy
	}
	return ModeStructured
}

// ConfigurationError reports a survey with a display policy this pipeline
// does not know. The whole request fails rather than silently showing or
// hiding the survey.
type ConfigurationError struct {
	SurveyID      string
	DisplayOption store.DisplayOption
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("eligibility: survey %q has unknown display option %q", e.SurveyID, e.DisplayOption)
}

// SurveyReader serves the candidate surveys of an environment.
type SurveyReader interface {
	ListSurveys(ctx context.Context, environmentID string) ([]*store.Survey, error)
}

// DisplayReader serves a person's display history.
type DisplayReader interface {
	ListDisplays(ctx context.Context, personID string) ([]*store.Display, error)
}

// PersonReader serves a person's profile and action history.
type PersonReader interface {
	GetPerson(ctx context.Context, id string) (*store.Person, error)
	PerformedActionClassIDs(ctx context.Context, personID string) ([]string, error)
}

// Options tune the pipeline.
type Options struct {
	// DefaultRecontactDays applies when a survey has no recontactDays of its
	// own. Nil disables the default window entirely.
	DefaultRecontactDays *int
	// ResultTTL bounds cached eligibility results. Zero means the cache
	// backend default.
	ResultTTL time.Duration
	Logger    *slog.Logger
}

// Pipeline evaluates survey eligibility for one person at a time.
type Pipeline struct {
	surveys  SurveyReader
	displays DisplayReader
	people   PersonReader

	cache cache.CacheService
	keys  cache.KeySerializer

	defaultRecontactDays *int
	ttl                  time.Duration
	logger               *slog.Logger
	now                  func() time.Time
}

// NewPipeline wires an eligibility pipeline over the given readers.
func NewPipeline(surveys SurveyReader, displays DisplayReader, people PersonReader, cacheService cache.CacheService, keys cache.KeySerializer, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		surveys:              surveys,
		displays:             displays,
		people:               people,
		cache:                cacheService,
		keys:                 keys,
		defaultRecontactDays: opts.DefaultRecontactDays,
		ttl:                  opts.ResultTTL,
		logger:               logger,
		now:                  time.Now,
	}
}

// EligibleSurveys returns the surveys the person should currently be offered,
// in stable creation order. Results are cached per (environment, person,
// device, protocol version) and evicted whenever the surveys, the person, the
// person's displays, or the environment's segments change.
func (p *Pipeline) EligibleSurveys(ctx context.Context, req Request) ([]*store.Survey, error) {
	key := p.keys.SerializeKey("Pipeline.EligibleSurveys",
		req.EnvironmentID, req.PersonID, string(req.Device), req.ProtocolVersion)
	tags := []string{
		tagging.ByEnvironmentID(tagging.KindSurvey, req.EnvironmentID),
		tagging.ByEnvironmentID(tagging.KindSegment, req.EnvironmentID),
		tagging.ByPersonID(tagging.KindDisplay, req.PersonID),
		tagging.ByPersonID(tagging.KindAction, req.PersonID),
		tagging.ByID(tagging.KindPerson, req.PersonID),
	}

	return cache.GetOrFetch(ctx, p.cache, key, tags, p.ttl, func(ctx context.Context) ([]*store.Survey, error) {
		return p.evaluate(ctx, req)
	})
}

func (p *Pipeline) evaluate(ctx context.Context, req Request) ([]*store.Survey, error) {
	candidates, err := p.surveys.ListSurveys(ctx, req.EnvironmentID)
	if err != nil {
		return nil, err
	}

	live := candidates[:0:0]
	for _, survey := range candidates {
		if survey.Status == store.StatusInProgress {
			live = append(live, survey)
		}
	}
	if len(live) == 0 {
		return nil, nil
	}

	displays, err := p.displays.ListDisplays(ctx, req.PersonID)
	if err != nil {
		return nil, err
	}

	segCtx, err := p.segmentContext(ctx, req)
	if err != nil {
		return nil, err
	}

	now := p.now()
	mode := req.Mode()

	eligible := make([]*store.Survey, 0, len(live))
	for _, survey := range live {
		ok, err := p.passesFrequency(survey, displays)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !p.passesRecontact(survey, displays, now) {
			continue
		}
		match, err := p.passesSegment(survey, segCtx, mode)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		eligible = append(eligible, survey)
	}
	return eligible, nil
}

func (p *Pipeline) segmentContext(ctx context.Context, req Request) (segment.Context, error) {
	person, err := p.people.GetPerson(ctx, req.PersonID)
	if err != nil {
		return segment.Context{}, err
	}
	actionClassIDs, err := p.people.PerformedActionClassIDs(ctx, req.PersonID)
	if err != nil {
		return segment.Context{}, err
	}

	segCtx := segment.Context{
		EnvironmentID:  req.EnvironmentID,
		PersonID:       req.PersonID,
		Attributes:     person.Attributes,
		ActionClassIDs: actionClassIDs,
		Device:         req.Device,
	}
	if person.UserID != nil {
		segCtx.UserID = *person.UserID
	}
	return segCtx, nil
}

// passesFrequency applies the survey's display policy against the person's
// history with this specific survey.
func (p *Pipeline) passesFrequency(survey *store.Survey, displays []*store.Display) (bool, error) {
	switch survey.DisplayOption {
	case store.RespondMultiple:
		return true, nil
	case store.DisplayOnce:
		for _, d := range displays {
			if d.SurveyID == survey.ID {
				return false, nil
			}
		}
		return true, nil
	case store.DisplayMultiple:
		// A display that collected a response counts as completed; further
		// displays of the survey stop.
		for _, d := range displays {
			if d.SurveyID == survey.ID && d.ResponseID != nil {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, &ConfigurationError{SurveyID: survey.ID, DisplayOption: survey.DisplayOption}
	}
}

// passesRecontact enforces the quiet period. A survey's own recontactDays
// counts from the person's last display of that survey; the product-level
// default counts from the last display of any survey.
func (p *Pipeline) passesRecontact(survey *store.Survey, displays []*store.Display, now time.Time) bool {
	if latestDisplay(displays, "") == nil {
		return true
	}

	if survey.RecontactDays != nil {
		latest := latestDisplay(displays, survey.ID)
		if latest == nil {
			return true
		}
		return quietFor(now, latest, *survey.RecontactDays)
	}

	if p.defaultRecontactDays != nil {
		return quietFor(now, latestDisplay(displays, ""), *p.defaultRecontactDays)
	}
	return true
}

func quietFor(now time.Time, latest *store.Display, days int) bool {
	return now.Sub(latest.CreatedAt) >= time.Duration(days)*24*time.Hour
}

// latestDisplay returns the most recent display, optionally restricted to
// one survey. Empty surveyID means any survey.
func latestDisplay(displays []*store.Display, surveyID string) *store.Display {
	var latest *store.Display
	for _, d := range displays {
		if surveyID != "" && d.SurveyID != surveyID {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	return latest
}

// passesSegment evaluates the survey's targeting segment in the requested
// mode. Surveys without a segment or without filters target everyone.
func (p *Pipeline) passesSegment(survey *store.Survey, segCtx segment.Context, mode Mode) (bool, error) {
	if survey.Segment == nil || survey.Segment.Filters == nil {
		return true, nil
	}

	if mode == ModeLegacy {
		filters, err := segment.ToAttributeFilters(survey.Segment.Filters)
		if err != nil {
			// A tree the legacy protocol cannot express hides the survey
			// instead of failing the request.
			p.logger.Debug("segment not expressible on legacy protocol",
				"survey", survey.ID, "segment", survey.Segment.ID)
			return false, nil
		}
		return segment.EvaluateAttributeFilters(segCtx, filters), nil
	}

	return segment.Evaluate(segCtx, survey.Segment.Filters), nil
}
