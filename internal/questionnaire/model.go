// Package questionnaire defines the form definition and response data model:
// an immutable item tree loaded once per session, and the mutable response
// document owned by the session manager.
package questionnaire

import (
	"fmt"
	"strings"

	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// ItemType classifies an item in the question tree. The set is closed; an
// unknown type in a questionnaire document is a load-time error.
type ItemType string

const (
	TypeString     ItemType = "STRING"
	TypeText       ItemType = "TEXT"
	TypeBoolean    ItemType = "BOOLEAN"
	TypeDecimal    ItemType = "DECIMAL"
	TypeInteger    ItemType = "INTEGER"
	TypeDate       ItemType = "DATE"
	TypeTime       ItemType = "TIME"
	TypeDateTime   ItemType = "DATETIME"
	TypeChoice     ItemType = "CHOICE"
	TypeOpenChoice ItemType = "OPEN_CHOICE"
	TypeDisplay    ItemType = "DISPLAY"
	TypeGroup      ItemType = "GROUP"
	TypeQuantity   ItemType = "QUANTITY"
)

var itemTypes = map[string]ItemType{
	"STRING":      TypeString,
	"TEXT":        TypeText,
	"BOOLEAN":     TypeBoolean,
	"DECIMAL":     TypeDecimal,
	"INTEGER":     TypeInteger,
	"DATE":        TypeDate,
	"TIME":        TypeTime,
	"DATETIME":    TypeDateTime,
	"CHOICE":      TypeChoice,
	"OPEN_CHOICE": TypeOpenChoice,
	"DISPLAY":     TypeDisplay,
	"GROUP":       TypeGroup,
	"QUANTITY":    TypeQuantity,
}

// ParseItemType resolves a type name case-insensitively.
func ParseItemType(s string) (ItemType, error) {
	if t, ok := itemTypes[strings.ToUpper(s)]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown item type: %q", s)
}

// UnmarshalJSON enforces the closed type set at decode time.
func (t *ItemType) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseItemType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// AnswerOption is one selectable choice for CHOICE / OPEN_CHOICE items.
type AnswerOption struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

// ValidationRule pairs an error message (often a translation key) with a rule
// expression; a truthy result means the answer is valid.
type ValidationRule struct {
	Message    string         `json:"message"`
	Expression *jsontree.Node `json:"expression"`
}

// CalculatedValue binds a context variable name to a rule expression.
// Entries evaluate in list order and later entries may reference earlier
// results, so the order is significant.
type CalculatedValue struct {
	Name       string         `json:"name"`
	Expression *jsontree.Node `json:"expression"`
}

// Translations describes where locale string maps are fetched from.
type Translations struct {
	DefaultLocale string            `json:"defaultLocale"`
	Sources       map[string]string `json:"sources"`
}

// Item is one node of the static question tree: a question, display text, or
// group. Items are immutable after load; linkId is the identity for every
// lookup against the response.
type Item struct {
	LinkID        string           `json:"linkId"`
	Type          ItemType         `json:"type"`
	Text          string           `json:"text"`
	Required      bool             `json:"required,omitempty"`
	Repeats       bool             `json:"repeats,omitempty"`
	VisibleIf     *jsontree.Node   `json:"visibleIf,omitempty"`
	AnswerOptions []AnswerOption   `json:"answerOptions,omitempty"`
	Validations   []ValidationRule `json:"validations,omitempty"`
	Items         []Item           `json:"items,omitempty"`
}

// Questionnaire is the immutable form definition.
type Questionnaire struct {
	ID                 string            `json:"id"`
	Version            string            `json:"version,omitempty"`
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	Translations       *Translations     `json:"translations,omitempty"`
	CalculatedValues   []CalculatedValue `json:"calculatedValues,omitempty"`
	ExtractionTemplate *jsontree.Node    `json:"extractionTemplate,omitempty"`
	Items              []Item            `json:"items"`
}

// Answer wraps one JSON answer value. Multiple answers on one response item
// model multi-valued questions; a repeating group stores its whole instance
// set as a single array answer.
type Answer struct {
	Value *jsontree.Node `json:"value"`
}

// ResponseItem holds the answers for one Item, joined by linkId. Nested
// response items mirror non-repeating group structure only.
type ResponseItem struct {
	LinkID  string         `json:"linkId"`
	Answers []Answer       `json:"answers,omitempty"`
	Items   []ResponseItem `json:"items,omitempty"`
}

// Subject identifies who or what the response is about.
type Subject struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Response is the mutable answer document for one questionnaire session.
type Response struct {
	ID              string         `json:"id"`
	QuestionnaireID string         `json:"questionnaireId"`
	Authored        string         `json:"authored"`
	Subject         *Subject       `json:"subject,omitempty"`
	Items           []ResponseItem `json:"items"`
}

// Clone returns a deep copy of the response tree. Answer values share their
// underlying nodes, which are immutable.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	if r.Subject != nil {
		s := *r.Subject
		out.Subject = &s
	}
	out.Items = cloneResponseItems(r.Items)
	return &out
}

func cloneResponseItems(items []ResponseItem) []ResponseItem {
	if items == nil {
		return nil
	}
	out := make([]ResponseItem, len(items))
	for i, it := range items {
		out[i] = ResponseItem{
			LinkID:  it.LinkID,
			Answers: append([]Answer(nil), it.Answers...),
			Items:   cloneResponseItems(it.Items),
		}
	}
	return out
}

// ValidationError reports one failed check against a visible item. Path is
// the linkId chain from the root to the offending item, used by consumers
// for deep-linking.
type ValidationError struct {
	LinkID   string   `json:"linkId"`
	Path     []string `json:"path"`
	Message  string   `json:"message"`
	ItemText string   `json:"itemText,omitempty"`
}
