package engine

import (
	"github.com/ellykits/lite-quest/internal/questionnaire"
	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// BuildContext flattens a response tree into the flat variable map the rule
// evaluator reads. Each answered item binds its native value under its
// linkId; unanswered items with children recurse, so nesting does not
// namespace keys (linkIds are unique across the tree).
func BuildContext(resp *questionnaire.Response) map[string]any {
	ctx := make(map[string]any)
	if resp != nil {
		flattenResponseItems(resp.Items, ctx)
	}
	return ctx
}

func flattenResponseItems(items []questionnaire.ResponseItem, ctx map[string]any) {
	for i := range items {
		item := &items[i]
		switch {
		case len(item.Answers) == 1:
			ctx[item.LinkID] = answerValue(item.Answers[0].Value)
		case len(item.Answers) > 1:
			values := make([]any, len(item.Answers))
			for j, a := range item.Answers {
				values[j] = a.Value.ToNative()
			}
			ctx[item.LinkID] = values
		case len(item.Items) > 0:
			flattenResponseItems(item.Items, ctx)
		}
	}
}

// answerValue converts a single answer. Array answers are the repeating-group
// encoding: only object elements survive, each becoming one instance map.
func answerValue(v *jsontree.Node) any {
	switch v.Kind() {
	case jsontree.KindArray:
		return instanceMaps(v)
	case jsontree.KindObject:
		return objectMap(v)
	default:
		return v.ToNative()
	}
}

func instanceMaps(arr *jsontree.Node) []map[string]any {
	out := make([]map[string]any, 0, arr.Len())
	for _, elem := range arr.Elems() {
		if elem.Kind() == jsontree.KindObject {
			out = append(out, objectMap(elem))
		}
	}
	return out
}

func objectMap(obj *jsontree.Node) map[string]any {
	out := make(map[string]any, obj.Len())
	for _, key := range obj.Keys() {
		field := obj.Field(key)
		switch field.Kind() {
		case jsontree.KindArray:
			out[key] = instanceMaps(field)
		case jsontree.KindObject:
			out[key] = objectMap(field)
		default:
			out[key] = field.ToNative()
		}
	}
	return out
}
