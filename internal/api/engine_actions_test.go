package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestCompleteTaskRetries проверяет, что CompleteTask делает retry при 500
// и успешно завершается при 200
func TestCompleteTaskRetries(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if r.Method != "POST" || r.URL.Path != "/api/v1/tasks/t-1/complete" {
			t.Fatalf("неожиданный запрос: %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"data": {"success": true}}`)
	}))
	defer ts.Close()

	c := testClient(ts)
	if err := c.CompleteTask(context.Background(), "t-1"); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if calls < 2 {
		t.Fatalf("expected at least 2 calls, got %d", calls)
	}
}

// TestCompleteTaskServerRejection проверяет, что success=false превращается
// в ошибку с серверным сообщением
func TestCompleteTaskServerRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"data": {"success": false, "message": "задача уже завершена"}}`)
	}))
	defer ts.Close()

	c := testClient(ts)
	err := c.CompleteTask(context.Background(), "t-1")
	if err == nil {
		t.Fatalf("отказ движка должен быть ошибкой")
	}
	if !strings.Contains(err.Error(), "задача уже завершена") {
		t.Fatalf("ошибка должна содержать серверное сообщение: %v", err)
	}
}

func TestClaimTaskSendsUserID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tasks/t-1/claim" {
			t.Fatalf("неожиданный путь: %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("ошибка декодирования тела: %v", err)
		}
		if body["userId"] != "alice" {
			t.Fatalf("ожидался userId=alice, получено: %v", body)
		}
		io.WriteString(w, `{"data": {"status": true}}`)
	}))
	defer ts.Close()

	c := testClient(ts)
	if err := c.ClaimTask(context.Background(), "t-1", "alice"); err != nil {
		t.Fatalf("ClaimTask failed: %v", err)
	}
}

func TestUnclaimTaskStatusFalse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"data": {"status": false, "message": "задача не назначена"}}`)
	}))
	defer ts.Close()

	c := testClient(ts)
	err := c.UnclaimTask(context.Background(), "t-1")
	if err == nil || !strings.Contains(err.Error(), "задача не назначена") {
		t.Fatalf("ожидалась ошибка с серверным сообщением, получено: %v", err)
	}
}

func TestSubmitDecisionsPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tasks/t-1/decisions" {
			t.Fatalf("неожиданный путь: %s", r.URL.Path)
		}
		var body struct {
			Decisions map[string]string `json:"decisions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("ошибка декодирования тела: %v", err)
		}
		if body.Decisions["Check_A"] != "approved" {
			t.Fatalf("решения не дошли до движка: %v", body.Decisions)
		}
		io.WriteString(w, `{"data": {"success": true}}`)
	}))
	defer ts.Close()

	c := testClient(ts)
	err := c.SubmitDecisions(context.Background(), "t-1", map[string]string{"Check_A": "approved"})
	if err != nil {
		t.Fatalf("SubmitDecisions failed: %v", err)
	}
}
