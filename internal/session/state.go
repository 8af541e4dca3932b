// Package session owns the reactive state container for one questionnaire
// session: a manager that serializes answer mutations, recomputes derived
// state, and publishes immutable snapshots to subscribers.
package session

import (
	"github.com/ellykits/lite-quest/internal/questionnaire"
)

// State is one immutable snapshot of a questionnaire session. A new value
// replaces the previous one wholesale on every recompute; retained snapshots
// stay internally consistent forever.
type State struct {
	Questionnaire    *questionnaire.Questionnaire    `json:"-"`
	Response         questionnaire.Response          `json:"response"`
	VisibleItems     []questionnaire.Item            `json:"visibleItems"`
	ValidationErrors []questionnaire.ValidationError `json:"validationErrors"`
	CalculatedValues map[string]any                  `json:"calculatedValues"`
	IsValid          bool                            `json:"isValid"`
}

// initialState is the pre-recompute snapshot published at construction: the
// full unpruned item tree, no errors yet, and not valid until something is
// answered and checked.
func initialState(q *questionnaire.Questionnaire, resp *questionnaire.Response) State {
	return State{
		Questionnaire:    q,
		Response:         *resp,
		VisibleItems:     q.Items,
		ValidationErrors: nil,
		CalculatedValues: map[string]any{},
		IsValid:          false,
	}
}
