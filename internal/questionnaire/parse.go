package questionnaire

import (
	"encoding/json"
	"fmt"
)

// Parse decodes and structurally checks a questionnaire document. Duplicate
// or empty linkIds are rejected here so every later lookup can rely on
// linkId uniqueness.
func Parse(data []byte) (*Questionnaire, error) {
	var q Questionnaire
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode questionnaire: %w", err)
	}
	if q.ID == "" {
		return nil, fmt.Errorf("questionnaire is missing an id")
	}
	seen := make(map[string]struct{})
	if err := checkLinkIDs(q.Items, seen); err != nil {
		return nil, err
	}
	return &q, nil
}

func checkLinkIDs(items []Item, seen map[string]struct{}) error {
	for i := range items {
		id := items[i].LinkID
		if id == "" {
			return fmt.Errorf("item %q has an empty linkId", items[i].Text)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate linkId %q", id)
		}
		seen[id] = struct{}{}
		if err := checkLinkIDs(items[i].Items, seen); err != nil {
			return err
		}
	}
	return nil
}

// ParseResponse decodes a response document, e.g. one previously exported
// with Response's JSON form.
func ParseResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &r, nil
}
