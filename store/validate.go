package store

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Normalize repairs state that depends on the clock. A scheduled survey whose
// run date has already passed becomes inProgress so readers never see a
// survey that is both scheduled and live.
func (s *Survey) Normalize(now time.Time) {
	if s.Status == StatusScheduled && (s.RunOnDate == nil || !s.RunOnDate.After(now)) {
		s.Status = StatusInProgress
	}
}

// Validate checks the survey payload. now anchors the schedule checks so
// callers and tests share one clock.
func (s *Survey) Validate(now time.Time) error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Name, validation.Required),
		validation.Field(&s.EnvironmentID, validation.Required),
		validation.Field(&s.Type, validation.Required, validation.In(TypeLink, TypeApp, TypeWebsite, TypeWeb)),
		validation.Field(&s.Status, validation.Required, validation.In(StatusDraft, StatusInProgress, StatusPaused, StatusCompleted, StatusScheduled)),
		validation.Field(&s.DisplayOption, validation.Required, validation.In(DisplayOnce, DisplayMultiple, RespondMultiple)),
		validation.Field(&s.RecontactDays, validation.By(nonNegativeDays)),
	)
	if err != nil {
		return &InvalidInputError{Kind: "survey", Reason: err}
	}

	if s.Status == StatusScheduled {
		if s.RunOnDate == nil {
			return &InvalidInputError{Kind: "survey", Reason: fmt.Errorf("scheduled survey needs a run date")}
		}
		if !s.RunOnDate.After(now) {
			return &InvalidInputError{Kind: "survey", Reason: fmt.Errorf("scheduled run date %s is not in the future", s.RunOnDate.Format(time.RFC3339))}
		}
	}
	if s.RunOnDate != nil && s.CloseOnDate != nil && s.CloseOnDate.Before(*s.RunOnDate) {
		return &InvalidInputError{Kind: "survey", Reason: fmt.Errorf("close date precedes run date")}
	}

	if err := validateQuestions(s.Questions); err != nil {
		return &InvalidInputError{Kind: "survey", Reason: err}
	}
	if err := validateTriggers(s.Triggers); err != nil {
		return err
	}
	return validateLanguages(s.Languages)
}

func nonNegativeDays(value any) error {
	days, ok := value.(*int)
	if !ok || days == nil {
		return nil
	}
	if *days < 0 {
		return fmt.Errorf("must be zero or positive")
	}
	return nil
}

func validateQuestions(questions []Question) error {
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			return fmt.Errorf("question %d has no id", i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// validateTriggers rejects two bindings to the same action class; the second
// one would double-fire the survey.
func validateTriggers(triggers []*SurveyTrigger) error {
	seen := make(map[string]struct{}, len(triggers))
	for _, t := range triggers {
		if t == nil || t.ActionClassID == "" {
			return &InvalidInputError{Kind: "survey", Reason: fmt.Errorf("trigger without action class")}
		}
		if _, dup := seen[t.ActionClassID]; dup {
			return &InvalidInputError{Kind: "survey", Reason: fmt.Errorf("action class %q bound by more than one trigger", t.ActionClassID)}
		}
		seen[t.ActionClassID] = struct{}{}
	}
	return nil
}

func validateLanguages(languages []*SurveyLanguage) error {
	defaults := 0
	for _, l := range languages {
		if l == nil || l.LanguageID == "" {
			return &InvalidInputError{Kind: "survey", Reason: fmt.Errorf("language binding without language id")}
		}
		if l.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return &InvalidInputError{Kind: "survey", Reason: fmt.Errorf("%d default languages, at most one allowed", defaults)}
	}
	return nil
}

// Validate checks the segment payload, including its filter tree when one is
// set.
func (s *Segment) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Title, validation.Required),
		validation.Field(&s.EnvironmentID, validation.Required),
	)
	if err != nil {
		return &InvalidInputError{Kind: "segment", Reason: err}
	}

	if s.Filters != nil {
		if err := s.Filters.Validate(); err != nil {
			return &InvalidInputError{Kind: "segment", Reason: err}
		}
	}
	return nil
}

// Validate checks the display payload.
func (d *Display) Validate() error {
	err := validation.ValidateStruct(d,
		validation.Field(&d.PersonID, validation.Required),
		validation.Field(&d.SurveyID, validation.Required),
	)
	if err != nil {
		return &InvalidInputError{Kind: "display", Reason: err}
	}
	return nil
}

// Validate checks the action class payload.
func (a *ActionClass) Validate() error {
	err := validation.ValidateStruct(a,
		validation.Field(&a.Name, validation.Required),
		validation.Field(&a.EnvironmentID, validation.Required),
	)
	if err != nil {
		return &InvalidInputError{Kind: "action class", Reason: err}
	}
	return nil
}
