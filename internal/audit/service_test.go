package audit

import (
	"context"
	"encoding/json"
	"testing"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{BatchID: "bc_1"}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{Type: EventTypeLogin, Metadata: "{not json"}); err == nil {
		t.Fatalf("expected error for invalid metadata")
	}
}

func TestService_NilRepo(t *testing.T) {
	if err := NewService(nil).LogLogin(context.Background(), Actor{UserID: "u"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_LogCallSubmitted(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	a := Actor{UserID: "operator", Role: "operator", IP: "10.0.0.7"}
	if err := svc.LogCallSubmitted(context.Background(), a, "bc_1", 1, []string{"unexpected_field"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.Type != EventTypeCallSubmitted || e.BatchID != "bc_1" || e.IPAddress != "10.0.0.7" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled")
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(e.Metadata), &meta); err != nil {
		t.Fatalf("metadata not json: %v", err)
	}
	if meta["recipients"] != float64(1) {
		t.Fatalf("expected recipients=1, got %v", meta["recipients"])
	}
}

func TestService_LogPollCancelled(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	if err := svc.LogPollCancelled(context.Background(), Actor{UserID: "admin", Role: "admin"}, "bc_2"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := repo.Events()[0].Type; got != EventTypePollCancelled {
		t.Fatalf("expected poll_cancelled, got %s", got)
	}
}
