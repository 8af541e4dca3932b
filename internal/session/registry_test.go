package session

import (
	"errors"
	"testing"
	"time"

	"github.com/ellykits/lite-quest/internal/questionnaire"
)

func testQuestionnaire(t *testing.T) *questionnaire.Questionnaire {
	t.Helper()
	q, err := questionnaire.Parse([]byte(`{"id": "reg-test", "title": "Registry", "items": [
		{"linkId": "q1", "type": "STRING", "text": "q1"}
	]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return q
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := NewRegistry()

	s := r.Create(testQuestionnaire(t))
	if s.ID == "" {
		t.Fatalf("session id must be generated")
	}
	if r.Len() != 1 {
		t.Errorf("len = %d, want 1", r.Len())
	}

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != s {
		t.Errorf("get returned a different session")
	}

	if err := r.Delete(s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("len after delete = %d, want 0", r.Len())
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get deleted = %v, want ErrNotFound", err)
	}
}

func TestRegistry_DeleteUnknown(t *testing.T) {
	r := NewRegistry()
	if err := r.Delete("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete unknown = %v, want ErrNotFound", err)
	}
}

func TestRegistry_DeleteClosesManager(t *testing.T) {
	r := NewRegistry()
	s := r.Create(testQuestionnaire(t))

	ch, _ := s.Manager.Subscribe()
	<-ch

	if err := r.Delete(s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Errorf("manager should be closed when the session is deleted")
	}
}

func TestRegistry_GetTouchesLastAccess(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	s := r.Create(testQuestionnaire(t))
	now = now.Add(10 * time.Minute)
	if _, err := r.Get(s.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !s.LastAccess().Equal(now) {
		t.Errorf("lastAccess = %v, want %v", s.LastAccess(), now)
	}
}

func TestRegistry_SweepReapsIdleSessions(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	stale := r.Create(testQuestionnaire(t))
	ch, _ := stale.Manager.Subscribe()
	<-ch

	now = now.Add(45 * time.Minute)
	fresh := r.Create(testQuestionnaire(t))

	if n := r.Sweep(30 * time.Minute); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if _, err := r.Get(stale.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale session should be gone")
	}
	if _, err := r.Get(fresh.ID); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Errorf("swept session's manager should be closed")
	}
}
