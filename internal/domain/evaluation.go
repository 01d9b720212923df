package domain

import "time"

// EvaluationSourceImported tags evaluations written by a separate
// subsystem that applies its own consensus update directly. Trigger
// handlers must skip tagged evaluations entirely to avoid applying the
// same vote twice.
const EvaluationSourceImported = "imported-consensus"

// Evaluation is one scalar vote by one evaluator on one statement.
// It is created once per (evaluator, statement) pair, mutated in place
// on re-vote, and deleted on vote withdrawal.
type Evaluation struct {
	// EvaluatorID identifies the voter.
	EvaluatorID string `json:"evaluatorId"`

	// StatementID identifies the statement being evaluated.
	StatementID string `json:"statementId"`

	// ParentID is the parent of the evaluated statement.
	ParentID string `json:"parentId"`

	// Value is the scalar agreement score. The reference UI uses the
	// domain [-1, 1], but the scoring algorithm is domain-agnostic.
	Value float64 `json:"evaluation"`

	// Source marks which writer path owns this evaluation. Evaluations
	// whose source is listed in the engine's bypass set are ignored by
	// the trigger handlers.
	Source string `json:"source,omitempty"`

	// UpdatedAt is the time of the last lifecycle transition.
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasOpinion reports whether the evaluation contributes an opinion to
// the aggregate. A zero value means the evaluator has voted but holds
// no opinion, which is distinct from not having voted at all.
func (e *Evaluation) HasOpinion() bool { return e.Value != 0 }

// ChangeKind identifies which lifecycle transition of an evaluation a
// change event describes.
type ChangeKind string

// Evaluation lifecycle transitions. An evaluation moves
// Created → Updated* → Deleted; Deleted is terminal.
const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent is one logical lifecycle transition of an evaluation as
// delivered by the storage layer's change-trigger channel. The channel
// is at-least-once and unordered; EventID lets the idempotency guard
// recognize redelivery of the same logical event.
type ChangeEvent struct {
	// EventID uniquely identifies the logical event across redeliveries.
	EventID string `json:"eventId"`

	// Kind is the lifecycle transition that raised this event.
	Kind ChangeKind `json:"kind"`

	// Before is the evaluation state prior to the transition.
	// Nil for ChangeCreated.
	Before *Evaluation `json:"before,omitempty"`

	// After is the evaluation state after the transition.
	// Nil for ChangeDeleted.
	After *Evaluation `json:"after,omitempty"`
}

// Current returns the evaluation record the event is about: After when
// present, otherwise Before.
func (ev ChangeEvent) Current() *Evaluation {
	if ev.After != nil {
		return ev.After
	}
	return ev.Before
}
