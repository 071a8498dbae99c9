package eligibility

import (
	"context"

	"github.com/goliatone/go-survey-targeting/segment"
	"github.com/goliatone/go-survey-targeting/store"
)

// LegacySurvey is the survey view sent to SDKs that predate structured
// filter trees. Targeting arrives as flat attribute filters the old clients
// can apply locally.
type LegacySurvey struct {
	ID               string                    `json:"id"`
	Name             string                    `json:"name"`
	Type             store.SurveyType          `json:"type"`
	Status           store.SurveyStatus        `json:"status"`
	DisplayOption    store.DisplayOption       `json:"displayOption"`
	RecontactDays    *int                      `json:"recontactDays"`
	Questions        []store.Question          `json:"questions"`
	AttributeFilters []segment.AttributeFilter `json:"attributeFilters"`
}

// EligibleLegacySurveys runs the pipeline in legacy mode and shapes the
// result for old clients. Surveys whose segments cannot be flattened were
// already dropped by the pipeline.
func (p *Pipeline) EligibleLegacySurveys(ctx context.Context, req Request) ([]*LegacySurvey, error) {
	req.ProtocolVersion = ""
	surveys, err := p.EligibleSurveys(ctx, req)
	if err != nil {
		return nil, err
	}

	views := make([]*LegacySurvey, 0, len(surveys))
	for _, survey := range surveys {
		view, err := toLegacySurvey(survey)
		if err != nil {
			// The pipeline only passes translatable segments in legacy mode;
			// a failure here means the survey changed between evaluation and
			// shaping, so skip it.
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

func toLegacySurvey(survey *store.Survey) (*LegacySurvey, error) {
	view := &LegacySurvey{
		ID:            survey.ID,
		Name:          survey.Name,
		Type:          survey.Type,
		Status:        survey.Status,
		DisplayOption: survey.DisplayOption,
		RecontactDays: survey.RecontactDays,
		Questions:     survey.Questions,
	}

	if survey.Segment != nil && survey.Segment.Filters != nil {
		filters, err := segment.ToAttributeFilters(survey.Segment.Filters)
		if err != nil {
			return nil, err
		}
		view.AttributeFilters = filters
	}
	return view, nil
}
