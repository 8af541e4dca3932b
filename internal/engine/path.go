package engine

import (
	"strings"

	"github.com/ellykits/lite-quest/internal/questionnaire"
	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// ResolvePath walks a dotted path over heterogeneous structures: generic
// maps, JSON objects, the response document, and its subject. Any segment
// that cannot be resolved short-circuits to nil. Used by the "metadata"
// extraction source.
func ResolvePath(root any, path string) any {
	if root == nil {
		return nil
	}
	current := root
	for _, part := range strings.Split(path, ".") {
		switch c := current.(type) {
		case map[string]any:
			current = c[part]
		case *jsontree.Node:
			if c.Kind() == jsontree.KindObject {
				current = c.Field(part).ToNative()
			} else {
				current = nil
			}
		case *questionnaire.Response:
			current = responseField(c, part)
		case *questionnaire.Subject:
			current = subjectField(c, part)
		default:
			current = nil
		}
		if current == nil {
			break
		}
	}
	return current
}

func responseField(r *questionnaire.Response, field string) any {
	switch field {
	case "id":
		return r.ID
	case "questionnaireId":
		return r.QuestionnaireID
	case "authored":
		return r.Authored
	case "subject":
		if r.Subject == nil {
			return nil
		}
		return r.Subject
	case "items":
		return r.Items
	default:
		return nil
	}
}

func subjectField(s *questionnaire.Subject, field string) any {
	switch field {
	case "id":
		return s.ID
	case "type":
		return s.Type
	default:
		return nil
	}
}
