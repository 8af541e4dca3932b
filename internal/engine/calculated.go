package engine

import (
	"github.com/ellykits/lite-quest/internal/questionnaire"
)

// CalculatedValues evaluates the questionnaire's ordered named expressions.
type CalculatedValues struct {
	eval *Evaluator
}

// NewCalculatedValues creates the calculated-values engine.
func NewCalculatedValues(eval *Evaluator) *CalculatedValues {
	return &CalculatedValues{eval: eval}
}

// Evaluate runs each definition in list order against the context-so-far,
// writing every result back into the context so later expressions can
// reference earlier ones by name. The order dependency is deliberate; do not
// reorder or parallelize.
func (c *CalculatedValues) Evaluate(defs []questionnaire.CalculatedValue, dataContext map[string]any) map[string]any {
	results := make(map[string]any, len(defs))
	for _, def := range defs {
		result := c.eval.Evaluate(def.Expression, dataContext)
		results[def.Name] = result
		dataContext[def.Name] = result
	}
	return results
}
