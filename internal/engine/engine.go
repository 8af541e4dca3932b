package engine

import (
	"github.com/ellykits/lite-quest/internal/questionnaire"
	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// Engine binds the rule evaluator and the four derived algorithms to one
// questionnaire. It is stateless and safe for concurrent use; every method
// takes the response explicitly.
type Engine struct {
	q          *questionnaire.Questionnaire
	eval       *Evaluator
	calculated *CalculatedValues
	visibility *Visibility
	validation *Validation
	extraction *Extraction
}

// New creates an engine for the given questionnaire.
func New(q *questionnaire.Questionnaire) *Engine {
	eval := NewEvaluator()
	return &Engine{
		q:          q,
		eval:       eval,
		calculated: NewCalculatedValues(eval),
		visibility: NewVisibility(eval),
		validation: NewValidation(eval),
		extraction: NewExtraction(),
	}
}

// ValidateResponse checks the given items (all questionnaire items when nil)
// against the response. The data context includes calculated values, so
// validation rules may reference them.
func (e *Engine) ValidateResponse(resp *questionnaire.Response, items []questionnaire.Item) []questionnaire.ValidationError {
	if items == nil {
		items = e.q.Items
	}
	ctx := e.BuildContext(resp)
	return e.validation.ValidateResponse(items, resp.Items, ctx, nil)
}

// VisibleItems returns the pruned item tree for the response's current
// answers and calculated values.
func (e *Engine) VisibleItems(resp *questionnaire.Response) []questionnaire.Item {
	ctx := e.BuildContext(resp)
	return e.visibility.VisibleItems(e.q.Items, ctx)
}

// CalculatedValues evaluates the questionnaire's calculated values against
// the response.
func (e *Engine) CalculatedValues(resp *questionnaire.Response) map[string]any {
	ctx := BuildContext(resp)
	return e.calculated.Evaluate(e.q.CalculatedValues, ctx)
}

// ExtractData projects the response through the questionnaire's extraction
// template; nil when the questionnaire defines none.
func (e *Engine) ExtractData(resp *questionnaire.Response) *jsontree.Node {
	if e.q.ExtractionTemplate == nil {
		return nil
	}
	ctx := e.BuildContext(resp)
	calculated := e.CalculatedValues(resp)
	return e.extraction.Extract(resp, e.q.ExtractionTemplate, calculated, ctx)
}

// BuildContext flattens the response and layers the calculated values on
// top, yielding the full variable context rules evaluate against.
func (e *Engine) BuildContext(resp *questionnaire.Response) map[string]any {
	ctx := BuildContext(resp)
	e.calculated.Evaluate(e.q.CalculatedValues, ctx)
	return ctx
}
