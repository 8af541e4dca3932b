package engine

import (
	"github.com/ellykits/lite-quest/internal/questionnaire"
	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// Extraction projects a response into an arbitrary output document by
// walking a template tree and replacing "source"-tagged leaves with live
// values. Extraction is best effort: a missing answer, calculated value, or
// unknown source becomes JSON null, never an error.
type Extraction struct{}

// NewExtraction creates the extraction engine.
func NewExtraction() *Extraction { return &Extraction{} }

// Extract rebuilds the template with every source mapping resolved.
// answerMap is the flat data context (linkId -> native value) and
// calculatedValues the named results; metadata paths resolve against the
// response itself.
func (x *Extraction) Extract(
	resp *questionnaire.Response,
	template *jsontree.Node,
	calculatedValues map[string]any,
	answerMap map[string]any,
) *jsontree.Node {
	return x.processNode(template, resp, calculatedValues, answerMap)
}

func (x *Extraction) processNode(
	node *jsontree.Node,
	resp *questionnaire.Response,
	calculatedValues map[string]any,
	answerMap map[string]any,
) *jsontree.Node {
	switch node.Kind() {
	case jsontree.KindObject:
		if node.Has("source") {
			return x.resolveSource(node, resp, calculatedValues, answerMap)
		}
		out := jsontree.NewObject()
		for _, key := range node.Keys() {
			out.Set(key, x.processNode(node.Field(key), resp, calculatedValues, answerMap))
		}
		return out
	case jsontree.KindArray:
		elems := make([]*jsontree.Node, 0, node.Len())
		for _, elem := range node.Elems() {
			elems = append(elems, x.processNode(elem, resp, calculatedValues, answerMap))
		}
		return jsontree.NewArray(elems...)
	default:
		// Primitives are literal template values.
		return node
	}
}

func (x *Extraction) resolveSource(
	mapping *jsontree.Node,
	resp *questionnaire.Response,
	calculatedValues map[string]any,
	answerMap map[string]any,
) *jsontree.Node {
	source, ok := mapping.Field("source").Content()
	if !ok {
		return jsontree.Null()
	}

	switch source {
	case "answer":
		linkID, ok := mapping.Field("linkId").Content()
		if !ok {
			return jsontree.Null()
		}
		return jsontree.FromNative(answerMap[linkID])
	case "calculatedValue":
		name, ok := mapping.Field("name").Content()
		if !ok {
			return jsontree.Null()
		}
		return jsontree.FromNative(calculatedValues[name])
	case "metadata":
		path, ok := mapping.Field("path").Content()
		if !ok {
			return jsontree.Null()
		}
		return jsontree.FromNative(ResolvePath(resp, path))
	default:
		return jsontree.Null()
	}
}
