package engine

import (
	"reflect"
	"testing"

	"github.com/ellykits/lite-quest/internal/questionnaire"
	"github.com/ellykits/lite-quest/pkg/jsontree"
)

func visibleIf(raw string) *jsontree.Node {
	return jsontree.MustParse(raw)
}

func TestVisibility_NoExpressionIsAlwaysVisible(t *testing.T) {
	v := NewVisibility(NewEvaluator())
	item := questionnaire.Item{LinkID: "q1", Type: questionnaire.TypeString}
	if !v.IsVisible(&item, map[string]any{}) {
		t.Errorf("item without visibleIf must be visible")
	}
}

func TestVisibility_ExpressionControlsVisibility(t *testing.T) {
	v := NewVisibility(NewEvaluator())
	item := questionnaire.Item{
		LinkID:    "followup",
		Type:      questionnaire.TypeString,
		VisibleIf: visibleIf(`{"==": {"0": {"var": "has-symptoms"}, "1": true}}`),
	}

	if v.IsVisible(&item, map[string]any{"has-symptoms": false}) {
		t.Errorf("item visible despite false condition")
	}
	if !v.IsVisible(&item, map[string]any{"has-symptoms": true}) {
		t.Errorf("item hidden despite true condition")
	}
	// Missing variable means the condition resolves to nil, which is falsy.
	if v.IsVisible(&item, map[string]any{}) {
		t.Errorf("item visible despite unresolvable condition")
	}
}

func TestVisibility_PrunedTreeFiltersRecursively(t *testing.T) {
	items := []questionnaire.Item{
		{LinkID: "always", Type: questionnaire.TypeString},
		{
			LinkID: "group",
			Type:   questionnaire.TypeGroup,
			Items: []questionnaire.Item{
				{LinkID: "kept", Type: questionnaire.TypeString},
				{
					LinkID:    "dropped",
					Type:      questionnaire.TypeString,
					VisibleIf: visibleIf(`false`),
				},
			},
		},
		{
			LinkID:    "hidden-group",
			Type:      questionnaire.TypeGroup,
			VisibleIf: visibleIf(`false`),
			Items:     []questionnaire.Item{{LinkID: "unreachable", Type: questionnaire.TypeString}},
		},
	}

	v := NewVisibility(NewEvaluator())
	visible := v.VisibleItems(items, map[string]any{})

	if len(visible) != 2 {
		t.Fatalf("visible roots = %d, want 2", len(visible))
	}
	if visible[0].LinkID != "always" || visible[1].LinkID != "group" {
		t.Errorf("visible roots = %s, %s", visible[0].LinkID, visible[1].LinkID)
	}
	if len(visible[1].Items) != 1 || visible[1].Items[0].LinkID != "kept" {
		t.Errorf("group children = %#v, want only kept", visible[1].Items)
	}
}

func TestVisibility_EmptyGroupSurvives(t *testing.T) {
	items := []questionnaire.Item{
		{
			LinkID: "group",
			Type:   questionnaire.TypeGroup,
			Items: []questionnaire.Item{
				{LinkID: "child", Type: questionnaire.TypeString, VisibleIf: visibleIf(`false`)},
			},
		},
	}

	v := NewVisibility(NewEvaluator())
	visible := v.VisibleItems(items, map[string]any{})
	if len(visible) != 1 {
		t.Fatalf("group itself must survive, got %d items", len(visible))
	}
	if len(visible[0].Items) != 0 {
		t.Errorf("group children = %#v, want none", visible[0].Items)
	}
}

func TestVisibility_PruningIsIdempotent(t *testing.T) {
	items := []questionnaire.Item{
		{LinkID: "always", Type: questionnaire.TypeString},
		{
			LinkID: "group",
			Type:   questionnaire.TypeGroup,
			Items: []questionnaire.Item{
				{LinkID: "kept", Type: questionnaire.TypeString},
				{LinkID: "dropped", Type: questionnaire.TypeString, VisibleIf: visibleIf(`false`)},
			},
		},
	}
	ctx := map[string]any{}

	v := NewVisibility(NewEvaluator())
	first := v.VisibleItems(items, ctx)
	second := v.VisibleItems(items, ctx)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("pruning is not deterministic:\n%#v\n%#v", first, second)
	}
	if !reflect.DeepEqual(v.VisibleItems(first, ctx), first) {
		t.Errorf("pruning a pruned tree must be a no-op")
	}
}

func TestVisibility_SourceTreeIsNotMutated(t *testing.T) {
	items := []questionnaire.Item{
		{
			LinkID: "group",
			Type:   questionnaire.TypeGroup,
			Items: []questionnaire.Item{
				{LinkID: "child", Type: questionnaire.TypeString, VisibleIf: visibleIf(`false`)},
			},
		},
	}

	v := NewVisibility(NewEvaluator())
	v.VisibleItems(items, map[string]any{})

	if len(items[0].Items) != 1 {
		t.Errorf("pruning mutated the source tree")
	}
}
