package engine

import (
	"github.com/ellykits/lite-quest/internal/questionnaire"
)

// Validation checks required-ness and validation rules against visible items.
// Hidden items are skipped entirely: they produce no errors and their absence
// never triggers a required failure.
type Validation struct {
	eval *Evaluator
	vis  *Visibility
}

// NewValidation creates the validation engine.
func NewValidation(eval *Evaluator) *Validation {
	return &Validation{eval: eval, vis: NewVisibility(eval)}
}

// ValidateResponse walks the item tree against the response items and returns
// every failed check. path carries the linkId chain accumulated so far; pass
// nil at the root.
func (v *Validation) ValidateResponse(
	items []questionnaire.Item,
	responseItems []questionnaire.ResponseItem,
	dataContext map[string]any,
	path []string,
) []questionnaire.ValidationError {
	responseMap := make(map[string]*questionnaire.ResponseItem, len(responseItems))
	for i := range responseItems {
		responseMap[responseItems[i].LinkID] = &responseItems[i]
	}
	return v.validateLevel(items, responseMap, dataContext, path)
}

func (v *Validation) validateLevel(
	items []questionnaire.Item,
	responseItems map[string]*questionnaire.ResponseItem,
	dataContext map[string]any,
	path []string,
) []questionnaire.ValidationError {
	var errors []questionnaire.ValidationError

	for i := range items {
		item := &items[i]
		if !v.vis.IsVisible(item, dataContext) {
			continue
		}

		responseItem := responseItems[item.LinkID]
		currentPath := appendPath(path, item.LinkID)

		if item.Required && (responseItem == nil || len(responseItem.Answers) == 0) {
			errors = append(errors, questionnaire.ValidationError{
				LinkID:   item.LinkID,
				Path:     currentPath,
				Message:  item.Text + ".required",
				ItemText: item.Text,
			})
		}

		for _, rule := range item.Validations {
			if !IsTruthy(v.eval.Evaluate(rule.Expression, dataContext)) {
				errors = append(errors, questionnaire.ValidationError{
					LinkID:   item.LinkID,
					Path:     currentPath,
					Message:  rule.Message,
					ItemText: item.Text,
				})
			}
		}

		if len(item.Items) > 0 {
			nested := make(map[string]*questionnaire.ResponseItem)
			if responseItem != nil {
				for j := range responseItem.Items {
					nested[responseItem.Items[j].LinkID] = &responseItem.Items[j]
				}
			}
			errors = append(errors, v.validateLevel(item.Items, nested, dataContext, currentPath)...)
		}
	}

	return errors
}

// appendPath copies so sibling branches never share backing arrays.
func appendPath(path []string, linkID string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = linkID
	return out
}
