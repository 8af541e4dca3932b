package engine

import (
	"github.com/ellykits/lite-quest/internal/questionnaire"
)

// Visibility filters the item tree by each item's visibility expression.
type Visibility struct {
	eval *Evaluator
}

// NewVisibility creates the visibility engine.
func NewVisibility(eval *Evaluator) *Visibility {
	return &Visibility{eval: eval}
}

// IsVisible reports whether a single item is currently shown. Items without
// a visibility expression are always visible.
func (v *Visibility) IsVisible(item *questionnaire.Item, dataContext map[string]any) bool {
	if item.VisibleIf == nil {
		return true
	}
	return IsTruthy(v.eval.Evaluate(item.VisibleIf, dataContext))
}

// VisibleItems returns a new pruned copy of the item tree with invisible
// items dropped. A surviving group keeps its (recursively filtered) children;
// a group whose children are all hidden still appears, but empty.
func (v *Visibility) VisibleItems(items []questionnaire.Item, dataContext map[string]any) []questionnaire.Item {
	visible := make([]questionnaire.Item, 0, len(items))
	for i := range items {
		item := items[i]
		if !v.IsVisible(&item, dataContext) {
			continue
		}
		if len(item.Items) > 0 {
			item.Items = v.VisibleItems(item.Items, dataContext)
		}
		visible = append(visible, item)
	}
	return visible
}
