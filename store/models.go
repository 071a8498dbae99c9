// Package store holds the survey platform data model and the transactional
// services that mutate it. Every mutation computes the cache tags it staled
// and fires invalidation after the enclosing transaction commits, before the
// call returns, so subsequent reads never observe a partially stale view.
package store

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-survey-targeting/segment"
)

// SurveyStatus is the lifecycle state of a survey.
type SurveyStatus string

const (
	StatusDraft      SurveyStatus = "draft"
	StatusInProgress SurveyStatus = "inProgress"
	StatusPaused     SurveyStatus = "paused"
	StatusCompleted  SurveyStatus = "completed"
	StatusScheduled  SurveyStatus = "scheduled"
)

// SurveyType says where a survey renders.
type SurveyType string

const (
	TypeLink    SurveyType = "link"
	TypeApp     SurveyType = "app"
	TypeWebsite SurveyType = "website"
	// TypeWeb is the retired type reclassified by the migration utility.
	TypeWeb SurveyType = "web"
)

// DisplayOption is the display-frequency policy of a survey.
type DisplayOption string

const (
	DisplayOnce     DisplayOption = "displayOnce"
	DisplayMultiple DisplayOption = "displayMultiple"
	RespondMultiple DisplayOption = "respondMultiple"
)

// Question is one survey question. Questions live inside the survey row as a
// JSON column; the targeting layer never queries them individually.
type Question struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Headline string `json:"headline"`
	Required bool   `json:"required"`
}

// Survey is the central entity. It exclusively owns its trigger and language
// bindings and, when SegmentID points at a private segment, that segment too.
type Survey struct {
	bun.BaseModel `bun:"table:surveys,alias:s"`

	ID        string    `bun:"id,pk" json:"id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`

	Name          string        `bun:"name,notnull" json:"name"`
	Type          SurveyType    `bun:"type,notnull" json:"type"`
	EnvironmentID string        `bun:"environment_id,notnull" json:"environmentId"`
	Status        SurveyStatus  `bun:"status,notnull" json:"status"`
	DisplayOption DisplayOption `bun:"display_option,notnull" json:"displayOption"`

	// RecontactDays overrides the product default when set.
	RecontactDays *int       `bun:"recontact_days" json:"recontactDays"`
	RunOnDate     *time.Time `bun:"run_on_date" json:"runOnDate"`
	CloseOnDate   *time.Time `bun:"close_on_date" json:"closeOnDate"`

	Questions []Question `bun:"questions,type:jsonb" json:"questions"`

	SegmentID *string  `bun:"segment_id" json:"segmentId"`
	Segment   *Segment `bun:"rel:belongs-to,join:segment_id=id" json:"segment,omitempty"`

	Triggers  []*SurveyTrigger  `bun:"rel:has-many,join:id=survey_id" json:"triggers,omitempty"`
	Languages []*SurveyLanguage `bun:"rel:has-many,join:id=survey_id" json:"languages,omitempty"`
}

// SurveyTrigger binds a survey to an action class whose occurrence makes the
// survey a display candidate.
type SurveyTrigger struct {
	bun.BaseModel `bun:"table:survey_triggers,alias:st"`

	ID            string `bun:"id,pk" json:"id"`
	SurveyID      string `bun:"survey_id,notnull" json:"surveyId"`
	ActionClassID string `bun:"action_class_id,notnull" json:"actionClassId"`
}

// SurveyLanguage binds a survey to a language. At most one binding may be the
// default.
type SurveyLanguage struct {
	bun.BaseModel `bun:"table:survey_languages,alias:sl"`

	ID         string `bun:"id,pk" json:"id"`
	SurveyID   string `bun:"survey_id,notnull" json:"surveyId"`
	LanguageID string `bun:"language_id,notnull" json:"languageId"`
	Default    bool   `bun:"is_default,notnull" json:"default"`
	Enabled    bool   `bun:"enabled,notnull" json:"enabled"`
}

// Segment is a targeting rule. A private segment belongs to exactly one
// survey and follows its lifecycle; a shared one is referenced by many.
type Segment struct {
	bun.BaseModel `bun:"table:segments,alias:seg"`

	ID        string    `bun:"id,pk" json:"id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`

	// Title of a private segment is the owning survey's id.
	Title         string        `bun:"title,notnull" json:"title"`
	EnvironmentID string        `bun:"environment_id,notnull" json:"environmentId"`
	IsPrivate     bool          `bun:"is_private,notnull" json:"isPrivate"`
	Filters       *segment.Node `bun:"filters,type:jsonb" json:"filters"`

	Surveys []*Survey `bun:"rel:has-many,join:id=segment_id" json:"surveys,omitempty"`
}

// Display records one presentation of a survey to a person. ResponseID is set
// once the person responds.
type Display struct {
	bun.BaseModel `bun:"table:displays,alias:d"`

	ID        string    `bun:"id,pk" json:"id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`

	PersonID   string  `bun:"person_id,notnull" json:"personId"`
	SurveyID   string  `bun:"survey_id,notnull" json:"surveyId"`
	ResponseID *string `bun:"response_id" json:"responseId"`
}

// Person is an end user of the surveyed product.
type Person struct {
	bun.BaseModel `bun:"table:people,alias:p"`

	ID        string    `bun:"id,pk" json:"id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`

	EnvironmentID string            `bun:"environment_id,notnull" json:"environmentId"`
	UserID        *string           `bun:"user_id" json:"userId"`
	Attributes    map[string]string `bun:"attributes,type:jsonb" json:"attributes"`
}

// ActionClass is a named event type; surveys trigger on it and segments
// predicate on it.
type ActionClass struct {
	bun.BaseModel `bun:"table:action_classes,alias:ac"`

	ID        string    `bun:"id,pk" json:"id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`

	EnvironmentID string `bun:"environment_id,notnull" json:"environmentId"`
	Name          string `bun:"name,notnull" json:"name"`
	Type          string `bun:"type,notnull" json:"type"`
}

// Action is one occurrence of an action class performed by a person.
type Action struct {
	bun.BaseModel `bun:"table:actions,alias:a"`

	ID        string    `bun:"id,pk" json:"id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`

	PersonID      string `bun:"person_id,notnull" json:"personId"`
	ActionClassID string `bun:"action_class_id,notnull" json:"actionClassId"`
}

// Response is a person's answer set for one survey.
type Response struct {
	bun.BaseModel `bun:"table:responses,alias:r"`

	ID        string    `bun:"id,pk" json:"id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`

	SurveyID string  `bun:"survey_id,notnull" json:"surveyId"`
	PersonID *string `bun:"person_id" json:"personId"`
	Finished bool    `bun:"finished,notnull" json:"finished"`
}
