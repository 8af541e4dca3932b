package session

import (
	"math"
	"testing"
	"time"

	"github.com/ellykits/lite-quest/internal/questionnaire"
	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// ---------- Fixtures ----------

// vitalsQuestionnaire mirrors a typical intake form: required measurements,
// a BMI calculated value, a conditional display, and a follow-up question
// gated on a boolean answer.
const vitalsQuestionnaire = `{
	"id": "vitals-check",
	"title": "Vitals Check",
	"calculatedValues": [
		{
			"name": "bmi",
			"expression": {"/": {
				"0": {"var": "weight-kg"},
				"1": {"*": {"0": {"var": "height-m"}, "1": {"var": "height-m"}}}
			}}
		}
	],
	"extractionTemplate": {
		"resourceType": "Observation",
		"subject": {"source": "metadata", "path": "subject.id"},
		"weight": {"source": "answer", "linkId": "weight-kg"},
		"bmi": {"source": "calculatedValue", "name": "bmi"}
	},
	"items": [
		{
			"linkId": "vitals-group",
			"type": "GROUP",
			"text": "vitals.title",
			"items": [
				{"linkId": "weight-kg", "type": "DECIMAL", "text": "weight.label", "required": true},
				{"linkId": "height-m", "type": "DECIMAL", "text": "height.label", "required": true}
			]
		},
		{
			"linkId": "display-bmi",
			"type": "DISPLAY",
			"text": "bmi.display",
			"visibleIf": {"!": {"==": {"0": {"var": "bmi"}, "1": null}}}
		},
		{"linkId": "has-symptoms", "type": "BOOLEAN", "text": "symptoms.question"},
		{
			"linkId": "symptoms-list",
			"type": "TEXT",
			"text": "symptoms.list",
			"visibleIf": {"==": {"0": {"var": "has-symptoms"}, "1": true}}
		}
	]
}`

func newVitalsManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	q, err := questionnaire.Parse([]byte(vitalsQuestionnaire))
	if err != nil {
		t.Fatalf("parse questionnaire: %v", err)
	}
	return NewManager(q, opts...)
}

func answer(t *testing.T, raw string) *jsontree.Node {
	t.Helper()
	n, err := jsontree.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse answer %s: %v", raw, err)
	}
	return n
}

func containsLinkID(items []questionnaire.Item, linkID string) bool {
	for _, item := range items {
		if item.LinkID == linkID || containsLinkID(item.Items, linkID) {
			return true
		}
	}
	return false
}

// ---------- Construction ----------

func TestManager_InitialState(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	subject := &questionnaire.Subject{ID: "patient-9", Type: "Patient"}
	m := newVitalsManager(t, WithSubject(subject), WithClock(func() time.Time { return fixed }))
	defer m.Close()

	state := m.State()
	if state.Response.QuestionnaireID != "vitals-check" {
		t.Errorf("questionnaireId = %q", state.Response.QuestionnaireID)
	}
	if state.Response.ID == "" {
		t.Errorf("response id must be generated")
	}
	if state.Response.Authored != "2024-06-01T10:00:00Z" {
		t.Errorf("authored = %q", state.Response.Authored)
	}
	if state.Response.Subject == nil || state.Response.Subject.ID != "patient-9" {
		t.Errorf("subject = %#v", state.Response.Subject)
	}
	if state.IsValid {
		t.Errorf("fresh session must not be valid")
	}

	// One response item per questionnaire item, nested for the group.
	if len(state.Response.Items) != 4 {
		t.Fatalf("top-level response items = %d, want 4", len(state.Response.Items))
	}
	if len(state.Response.Items[0].Items) != 2 {
		t.Errorf("vitals-group response items = %d, want 2", len(state.Response.Items[0].Items))
	}
}

// ---------- Answer updates ----------

func TestManager_UpdateAnswerRecomputesEverything(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	m.UpdateAnswer("weight-kg", answer(t, `80.5`))
	state := m.UpdateAnswer("height-m", answer(t, `1.8`))

	bmi, ok := state.CalculatedValues["bmi"].(float64)
	if !ok {
		t.Fatalf("bmi = %#v, want a float", state.CalculatedValues["bmi"])
	}
	if math.Abs(bmi-24.845679012345678) > 1e-4 {
		t.Errorf("bmi = %v", bmi)
	}

	// BMI display appears once the calculated value resolves.
	if !containsLinkID(state.VisibleItems, "display-bmi") {
		t.Errorf("display-bmi should be visible once bmi is computed")
	}
	// The symptom follow-up stays hidden until has-symptoms is true.
	if containsLinkID(state.VisibleItems, "symptoms-list") {
		t.Errorf("symptoms-list should stay hidden")
	}
	if !state.IsValid {
		t.Errorf("all required answers given, state should be valid: %#v", state.ValidationErrors)
	}
}

func TestManager_ConditionalFollowUp(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	state := m.UpdateAnswer("has-symptoms", answer(t, `true`))
	if !containsLinkID(state.VisibleItems, "symptoms-list") {
		t.Errorf("symptoms-list should be visible after has-symptoms=true")
	}

	state = m.UpdateAnswer("has-symptoms", answer(t, `false`))
	if containsLinkID(state.VisibleItems, "symptoms-list") {
		t.Errorf("symptoms-list should hide again after has-symptoms=false")
	}
}

func TestManager_RequiredErrorsUseTextKey(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	state := m.UpdateAnswer("has-symptoms", answer(t, `false`))
	messages := map[string]bool{}
	for _, e := range state.ValidationErrors {
		messages[e.Message] = true
	}
	if !messages["weight.label.required"] || !messages["height.label.required"] {
		t.Errorf("validation errors = %#v", state.ValidationErrors)
	}
}

func TestManager_NullAnswerClears(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	m.UpdateAnswer("weight-kg", answer(t, `80.5`))
	m.UpdateAnswer("height-m", answer(t, `1.8`))
	state := m.UpdateAnswer("weight-kg", answer(t, `null`))

	if state.CalculatedValues["bmi"] != nil {
		t.Errorf("bmi after clearing weight = %#v, want nil", state.CalculatedValues["bmi"])
	}
	if state.IsValid {
		t.Errorf("state should be invalid after clearing a required answer")
	}
	if containsLinkID(state.VisibleItems, "display-bmi") {
		t.Errorf("display-bmi should hide when bmi is nil")
	}
}

func TestManager_UpdateUnknownLinkIDAppendsTopLevel(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	state := m.UpdateAnswer("adhoc", answer(t, `"extra"`))
	last := state.Response.Items[len(state.Response.Items)-1]
	if last.LinkID != "adhoc" || len(last.Answers) != 1 {
		t.Errorf("appended item = %#v", last)
	}
}

func TestManager_DirectAnswerWipesNestedItems(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	// Answering the group directly replaces its nested structure, the way a
	// repeating group stores its instance set as one array answer.
	state := m.UpdateAnswer("vitals-group", answer(t, `[{"weight-kg": 70}]`))

	var group *questionnaire.ResponseItem
	for i := range state.Response.Items {
		if state.Response.Items[i].LinkID == "vitals-group" {
			group = &state.Response.Items[i]
		}
	}
	if group == nil {
		t.Fatalf("vitals-group response item missing")
	}
	if len(group.Items) != 0 {
		t.Errorf("nested items should be wiped, got %#v", group.Items)
	}
	if len(group.Answers) != 1 {
		t.Errorf("answers = %#v", group.Answers)
	}
}

// ---------- Response round-trip ----------

func TestManager_SetResponseRoundTripIsDeterministic(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	m.UpdateAnswer("weight-kg", answer(t, `80.5`))
	m.UpdateAnswer("height-m", answer(t, `1.8`))
	first := m.State()

	exported := m.GetResponse()
	second := m.SetResponse(exported)

	if first.IsValid != second.IsValid {
		t.Errorf("IsValid changed across round-trip")
	}
	if len(first.ValidationErrors) != len(second.ValidationErrors) {
		t.Errorf("validation errors changed across round-trip")
	}
	fb, _ := first.CalculatedValues["bmi"].(float64)
	sb, _ := second.CalculatedValues["bmi"].(float64)
	if fb != sb {
		t.Errorf("bmi changed across round-trip: %v vs %v", fb, sb)
	}
}

func TestManager_GetResponseIsACopy(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	exported := m.GetResponse()
	exported.Items = nil
	if len(m.State().Response.Items) == 0 {
		t.Errorf("mutating the exported response must not affect the session")
	}
}

// ---------- Extraction ----------

func TestManager_ExtractData(t *testing.T) {
	subject := &questionnaire.Subject{ID: "patient-9", Type: "Patient"}
	m := newVitalsManager(t, WithSubject(subject))
	defer m.Close()

	m.UpdateAnswer("weight-kg", answer(t, `80.5`))
	m.UpdateAnswer("height-m", answer(t, `1.8`))

	out := m.ExtractData()
	if out == nil {
		t.Fatalf("extraction returned nil despite a template")
	}
	b, err := out.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal extracted: %v", err)
	}
	want := `{"resourceType":"Observation","subject":"patient-9","weight":80.5,"bmi":24.845679012345678}`
	if string(b) != want {
		t.Errorf("extracted = %s\nwant        %s", b, want)
	}
}

func TestManager_ExtractDataWithoutTemplate(t *testing.T) {
	q, err := questionnaire.Parse([]byte(`{"id": "plain", "title": "Plain", "items": [
		{"linkId": "q1", "type": "STRING", "text": "q1"}
	]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := NewManager(q)
	defer m.Close()

	if out := m.ExtractData(); out != nil {
		t.Errorf("extraction without template = %#v, want nil", out)
	}
}

// ---------- Subscriptions ----------

func TestManager_SubscribeDeliversCurrentThenUpdates(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	ch, cancel := m.Subscribe()
	defer cancel()

	first := <-ch
	if first.Response.QuestionnaireID != "vitals-check" {
		t.Fatalf("initial snapshot missing")
	}

	m.UpdateAnswer("has-symptoms", answer(t, `true`))
	next := <-ch
	if !containsLinkID(next.VisibleItems, "symptoms-list") {
		t.Errorf("snapshot after update should show symptoms-list")
	}
}

func TestManager_SnapshotsAreImmutable(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	ch, cancel := m.Subscribe()
	defer cancel()
	before := <-ch

	m.UpdateAnswer("weight-kg", answer(t, `80.5`))

	// The earlier snapshot still reflects the pre-update world.
	if before.CalculatedValues["bmi"] != nil {
		t.Errorf("old snapshot mutated: %#v", before.CalculatedValues)
	}
}

func TestManager_CancelStopsDelivery(t *testing.T) {
	m := newVitalsManager(t)
	defer m.Close()

	ch, cancel := m.Subscribe()
	<-ch
	cancel()

	if _, ok := <-ch; ok {
		t.Errorf("channel should be closed after cancel")
	}
	// Cancelling twice is a no-op.
	cancel()
}

func TestManager_CloseClosesSubscribers(t *testing.T) {
	m := newVitalsManager(t)

	ch, _ := m.Subscribe()
	<-ch
	m.Close()

	if _, ok := <-ch; ok {
		t.Errorf("channel should be closed after manager close")
	}

	// Updates after close are ignored.
	state := m.UpdateAnswer("weight-kg", answer(t, `80.5`))
	if state.CalculatedValues["bmi"] != nil {
		t.Errorf("closed manager recomputed state")
	}
}

func TestManager_SubscribeAfterClose(t *testing.T) {
	m := newVitalsManager(t)
	m.Close()

	ch, cancel := m.Subscribe()
	defer cancel()
	if _, ok := <-ch; ok {
		t.Errorf("subscription on a closed manager must be closed immediately")
	}
}

// ---------- Repeating groups ----------

func TestManager_RepeatingGroupInstances(t *testing.T) {
	q, err := questionnaire.Parse([]byte(`{
		"id": "meds",
		"title": "Medications",
		"calculatedValues": [
			{"name": "has-meds", "expression": {"!": {"!": {"var": "medications"}}}}
		],
		"items": [
			{
				"linkId": "medications",
				"type": "GROUP",
				"text": "meds.title",
				"repeats": true,
				"items": [
					{"linkId": "med-name", "type": "STRING", "text": "med.name"},
					{"linkId": "med-dose", "type": "INTEGER", "text": "med.dose"}
				]
			}
		]
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := NewManager(q)
	defer m.Close()

	// Repeating groups start without nested response items.
	if len(m.State().Response.Items[0].Items) != 0 {
		t.Errorf("repeating group should not pre-create nested items")
	}
	if m.State().CalculatedValues["has-meds"] != nil {
		// Initial state has no computed values yet.
		t.Errorf("initial calculated values = %#v", m.State().CalculatedValues)
	}

	state := m.UpdateAnswer("medications", answer(t, `[
		{"med-name": "aspirin", "med-dose": 100},
		{"med-name": "ibuprofen", "med-dose": 200}
	]`))

	if state.CalculatedValues["has-meds"] != true {
		t.Errorf("has-meds = %#v, want true", state.CalculatedValues["has-meds"])
	}

	state = m.UpdateAnswer("medications", answer(t, `[]`))
	if state.CalculatedValues["has-meds"] != false {
		t.Errorf("has-meds after clearing = %#v, want false", state.CalculatedValues["has-meds"])
	}
}
