package store

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entity IDs are stored as strings so they survive JSON round trips and tag
// construction untouched; the repository layer works in uuid.UUID, so the
// handlers translate at the boundary.

func parseID(id string) uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

// NewSurveyRepository builds the base survey repository.
func NewSurveyRepository(db *bun.DB) repository.Repository[*Survey] {
	return repository.NewRepository[*Survey](db, repository.ModelHandlers[*Survey]{
		NewRecord:     func() *Survey { return &Survey{} },
		GetID:         func(s *Survey) uuid.UUID { return parseID(s.ID) },
		SetID:         func(s *Survey, id uuid.UUID) { s.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

// NewSegmentRepository builds the base segment repository.
func NewSegmentRepository(db *bun.DB) repository.Repository[*Segment] {
	return repository.NewRepository[*Segment](db, repository.ModelHandlers[*Segment]{
		NewRecord:     func() *Segment { return &Segment{} },
		GetID:         func(s *Segment) uuid.UUID { return parseID(s.ID) },
		SetID:         func(s *Segment, id uuid.UUID) { s.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

// NewDisplayRepository builds the base display repository.
func NewDisplayRepository(db *bun.DB) repository.Repository[*Display] {
	return repository.NewRepository[*Display](db, repository.ModelHandlers[*Display]{
		NewRecord:     func() *Display { return &Display{} },
		GetID:         func(d *Display) uuid.UUID { return parseID(d.ID) },
		SetID:         func(d *Display, id uuid.UUID) { d.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

// NewPersonRepository builds the base person repository.
func NewPersonRepository(db *bun.DB) repository.Repository[*Person] {
	return repository.NewRepository[*Person](db, repository.ModelHandlers[*Person]{
		NewRecord:     func() *Person { return &Person{} },
		GetID:         func(p *Person) uuid.UUID { return parseID(p.ID) },
		SetID:         func(p *Person, id uuid.UUID) { p.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

// NewActionClassRepository builds the base action class repository.
func NewActionClassRepository(db *bun.DB) repository.Repository[*ActionClass] {
	return repository.NewRepository[*ActionClass](db, repository.ModelHandlers[*ActionClass]{
		NewRecord:     func() *ActionClass { return &ActionClass{} },
		GetID:         func(a *ActionClass) uuid.UUID { return parseID(a.ID) },
		SetID:         func(a *ActionClass, id uuid.UUID) { a.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

// NewActionRepository builds the base action repository.
func NewActionRepository(db *bun.DB) repository.Repository[*Action] {
	return repository.NewRepository[*Action](db, repository.ModelHandlers[*Action]{
		NewRecord:     func() *Action { return &Action{} },
		GetID:         func(a *Action) uuid.UUID { return parseID(a.ID) },
		SetID:         func(a *Action, id uuid.UUID) { a.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

// NewResponseRepository builds the base response repository.
func NewResponseRepository(db *bun.DB) repository.Repository[*Response] {
	return repository.NewRepository[*Response](db, repository.ModelHandlers[*Response]{
		NewRecord:     func() *Response { return &Response{} },
		GetID:         func(r *Response) uuid.UUID { return parseID(r.ID) },
		SetID:         func(r *Response, id uuid.UUID) { r.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

// NewTriggerRepository builds the base survey trigger repository.
func NewTriggerRepository(db *bun.DB) repository.Repository[*SurveyTrigger] {
	return repository.NewRepository[*SurveyTrigger](db, repository.ModelHandlers[*SurveyTrigger]{
		NewRecord:     func() *SurveyTrigger { return &SurveyTrigger{} },
		GetID:         func(t *SurveyTrigger) uuid.UUID { return parseID(t.ID) },
		SetID:         func(t *SurveyTrigger, id uuid.UUID) { t.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

// NewSurveyLanguageRepository builds the base survey language repository.
func NewSurveyLanguageRepository(db *bun.DB) repository.Repository[*SurveyLanguage] {
	return repository.NewRepository[*SurveyLanguage](db, repository.ModelHandlers[*SurveyLanguage]{
		NewRecord:     func() *SurveyLanguage { return &SurveyLanguage{} },
		GetID:         func(l *SurveyLanguage) uuid.UUID { return parseID(l.ID) },
		SetID:         func(l *SurveyLanguage, id uuid.UUID) { l.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}
