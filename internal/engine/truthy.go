package engine

import (
	"strconv"

	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// IsTruthy is the canonical boolean coercion used wherever a rule result must
// become a yes/no decision: nil is false, booleans are themselves, numbers
// are non-zero, strings and collections are non-empty, and everything else
// (objects, opaque values) is true. JSON-wrapped values unwrap first.
func IsTruthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case int:
		return v != 0
	case int32:
		return v != 0
	case float32:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case []map[string]any:
		return len(v) > 0
	case *jsontree.Node:
		return isTruthyNode(v)
	default:
		return true
	}
}

func isTruthyNode(n *jsontree.Node) bool {
	switch n.Kind() {
	case jsontree.KindNull:
		return false
	case jsontree.KindBool:
		b, _ := n.BoolVal()
		return b
	case jsontree.KindArray:
		return n.Len() > 0
	case jsontree.KindObject:
		return true
	default:
		// Primitive: boolean content first, then numeric zero-check, then
		// non-empty string.
		content, _ := n.Content()
		switch content {
		case "true":
			return true
		case "false":
			return false
		}
		if f, err := strconv.ParseFloat(content, 64); err == nil {
			return f != 0
		}
		return content != ""
	}
}
