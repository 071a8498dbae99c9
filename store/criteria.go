package store

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Query criteria compose onto repository reads. Keep these as named
// constructors so call sites document which slice of data they touch. Columns
// are qualified with the model alias because relation joins bring in tables
// that share column names (segments also carry environment_id and created_at).

// ByEnvironment restricts rows to one environment.
func ByEnvironment(environmentID string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.environment_id = ?", environmentID)
	}
}

// ByStatus restricts surveys to one lifecycle state.
func ByStatus(status SurveyStatus) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.status = ?", status)
	}
}

// ByType restricts surveys to one rendering type.
func ByType(surveyType SurveyType) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.type = ?", surveyType)
	}
}

// ByPerson restricts displays, actions, or responses to one person.
func ByPerson(personID string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.person_id = ?", personID)
	}
}

// BySurvey restricts displays, triggers, or responses to one survey.
func BySurvey(surveyID string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.survey_id = ?", surveyID)
	}
}

// ByActionClass restricts triggers or actions to one action class.
func ByActionClass(actionClassID string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.action_class_id = ?", actionClassID)
	}
}

// BySegment restricts surveys to the ones referencing a segment.
func BySegment(segmentID string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.segment_id = ?", segmentID)
	}
}

// SharedOnly excludes private segments from a listing.
func SharedOnly() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.is_private = ?", false)
	}
}

// NameMatches applies a case-insensitive substring match on the name column.
func NameMatches(query string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("lower(?TableAlias.name) LIKE ?", "%"+strings.ToLower(query)+"%")
	}
}

// OrderByCreatedAt sorts oldest first so listings are stable across calls.
func OrderByCreatedAt() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.created_at ASC")
	}
}

// OrderByCreatedAtDesc sorts newest first.
func OrderByCreatedAtDesc() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.created_at DESC")
	}
}

// PrivateOnly restricts segments to private ones.
func PrivateOnly() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.is_private = ?", true)
	}
}

// OrderByUpdatedAtDesc sorts most recently edited first.
func OrderByUpdatedAtDesc() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.updated_at DESC")
	}
}

// WithPage applies limit/offset pagination. Limit <= 0 means no limit.
func WithPage(limit, offset int) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if limit > 0 {
			q = q.Limit(limit)
		}
		if offset > 0 {
			q = q.Offset(offset)
		}
		return q
	}
}

// DeleteBySurvey scopes a bulk delete to one survey's rows.
func DeleteBySurvey(surveyID string) repository.DeleteCriteria {
	return func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("survey_id = ?", surveyID)
	}
}

// DeleteByPerson scopes a bulk delete to one person's rows.
func DeleteByPerson(personID string) repository.DeleteCriteria {
	return func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("person_id = ?", personID)
	}
}

// DeleteByActionClass scopes a bulk delete to one action class's rows.
func DeleteByActionClass(actionClassID string) repository.DeleteCriteria {
	return func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("action_class_id = ?", actionClassID)
	}
}

// WithSurveyRelations loads the segment, trigger, and language bindings
// alongside each survey row.
func WithSurveyRelations() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Relation("Segment").Relation("Triggers").Relation("Languages")
	}
}
