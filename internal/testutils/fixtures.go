package testutils

import (
	"fmt"
	"time"

	"github.com/ahrav/go-consensus/internal/domain"
)

// Statement returns a minimal votable statement under the given parent.
func Statement(id, parentID string) domain.Statement {
	return domain.Statement{
		ID:          id,
		ParentID:    parentID,
		TopParentID: parentID,
	}
}

// Evaluation returns one vote by evaluatorID on statementID.
func Evaluation(evaluatorID, statementID, parentID string, value float64) domain.Evaluation {
	return domain.Evaluation{
		EvaluatorID: evaluatorID,
		StatementID: statementID,
		ParentID:    parentID,
		Value:       value,
		UpdatedAt:   time.Unix(1700000000, 0),
	}
}

// CreatedEvent wraps an evaluation in a created-kind change event.
func CreatedEvent(eventID string, after domain.Evaluation) domain.ChangeEvent {
	return domain.ChangeEvent{
		EventID: eventID,
		Kind:    domain.ChangeCreated,
		After:   &after,
	}
}

// UpdatedEvent wraps a value transition in an updated-kind change event.
func UpdatedEvent(eventID string, before, after domain.Evaluation) domain.ChangeEvent {
	return domain.ChangeEvent{
		EventID: eventID,
		Kind:    domain.ChangeUpdated,
		Before:  &before,
		After:   &after,
	}
}

// DeletedEvent wraps a withdrawn evaluation in a deleted-kind change
// event.
func DeletedEvent(eventID string, before domain.Evaluation) domain.ChangeEvent {
	return domain.ChangeEvent{
		EventID: eventID,
		Kind:    domain.ChangeDeleted,
		Before:  &before,
	}
}

// EventID generates a distinct, readable event id for table-driven
// tests.
func EventID(prefix string, n int) string {
	return fmt.Sprintf("%s-%04d", prefix, n)
}
