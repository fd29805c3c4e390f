package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/action"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/config"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/memory"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/telemetry"
	"go.uber.org/zap"
)

type stubActions struct {
	result *action.Result
	last   *action.Request
}

func (s *stubActions) Route(_ context.Context, req *action.Request) *action.Result {
	s.last = req
	return s.result
}

type stubMemories struct {
	entries map[string]memory.Entry
	results []memory.SearchResult
}

func newStubMemories() *stubMemories {
	return &stubMemories{entries: map[string]memory.Entry{}}
}

func (s *stubMemories) UpsertBatch(_ context.Context, entries []memory.Entry) ([]string, error) {
	ids := make([]string, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = fmt.Sprintf("generated-%d", i)
		}
		s.entries[e.ID] = e
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *stubMemories) Search(_ context.Context, _, _ string, _ float64, _ int) ([]memory.SearchResult, error) {
	return s.results, nil
}

func (s *stubMemories) Delete(_ context.Context, id string) error {
	delete(s.entries, id)
	return nil
}

func (s *stubMemories) DeleteAllForUser(_ context.Context, userID string) error {
	for id, e := range s.entries {
		if e.UserID == userID {
			delete(s.entries, id)
		}
	}
	return nil
}

// newTestHandler wires a Handler with a real classifier and in-memory
// stand-ins for everything external (no Qdrant/Redis/Postgres).
func newTestHandler(t *testing.T) (*Handler, http.Handler, *stubActions, *stubMemories) {
	t.Helper()
	logger := zap.NewNop()

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	c := telemetry.NewClassifier(cfg.Telemetry, logger)
	actions := &stubActions{result: &action.Result{Status: action.StatusSuccess}}
	memories := newStubMemories()

	h := NewHandler(c, actions, logger)
	h.SetMemoryStore(memories)
	return h, h.Router(), actions, memories
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func deleteReq(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("DELETE", ts.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", path, err)
	}
	return resp
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	_, router, _, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestIngestTelemetry(t *testing.T) {
	_, router, _, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/telemetry", map[string]interface{}{
		"user_id": "u1",
		"signals": map[string]float64{"keystroke_rate": 120},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var c telemetry.Classification
	decodeJSON(t, resp, &c)
	if c.State == "" {
		t.Error("classification state is empty")
	}
}

func TestIngestTelemetryRequiresUserID(t *testing.T) {
	_, router, _, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/telemetry", map[string]interface{}{
		"signals": map[string]float64{"keystroke_rate": 120},
	})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetUserState(t *testing.T) {
	_, router, _, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/users/u1/state")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["state"] != string(telemetry.StateNormal) {
		t.Errorf("unseen user state = %v, want %s", body["state"], telemetry.StateNormal)
	}
}

func TestTransitionsUnavailableWithoutAudit(t *testing.T) {
	_, router, _, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/users/u1/transitions")
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHeldUnavailableWithoutBuffer(t *testing.T) {
	_, router, _, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/users/u1/held")
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRouteAction(t *testing.T) {
	_, router, actions, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/actions", map[string]interface{}{
		"user_id": "u1",
		"type":    "initiate_task",
		"payload": map[string]interface{}{"title": "write report"},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var res action.Result
	decodeJSON(t, resp, &res)
	if res.Status != action.StatusSuccess {
		t.Errorf("status = %s", res.Status)
	}
	if actions.last == nil || actions.last.Type != action.TypeInitiateTask {
		t.Errorf("router received %+v", actions.last)
	}
}

func TestRouteActionRejectsMalformed(t *testing.T) {
	_, router, actions, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/actions", map[string]interface{}{
		"user_id": "u1",
		"type":    "initiate_task",
		"payload": map[string]interface{}{},
	})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if actions.last != nil {
		t.Error("malformed request reached the action router")
	}
}

func TestMemoryCreateAndDelete(t *testing.T) {
	_, router, _, memories := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/memories", map[string]interface{}{
		"user_id": "u1",
		"content": "prefers written instructions over verbal",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var created map[string]string
	decodeJSON(t, resp, &created)
	if created["id"] == "" {
		t.Fatal("create returned empty id")
	}

	resp = deleteReq(t, ts, "/api/memories/"+created["id"])
	if resp.StatusCode != 200 {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(memories.entries) != 0 {
		t.Errorf("entries remaining after delete: %d", len(memories.entries))
	}
}

func TestMemoryCreateBatch(t *testing.T) {
	_, router, _, memories := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/memories", []map[string]interface{}{
		{"user_id": "u1", "content": "first"},
		{"user_id": "u1", "content": "second"},
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created map[string][]string
	decodeJSON(t, resp, &created)
	if len(created["ids"]) != 2 {
		t.Fatalf("ids = %v, want 2 entries", created["ids"])
	}
	if len(memories.entries) != 2 {
		t.Errorf("stored %d entries", len(memories.entries))
	}
}

func TestMemoryCreateRequiresContent(t *testing.T) {
	_, router, _, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/memories", map[string]interface{}{"user_id": "u1"})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMemorySearchReturnsEmptyArray(t *testing.T) {
	_, router, _, _ := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/memories/search", map[string]interface{}{
		"user_id": "u1",
		"query":   "anything",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var results []memory.SearchResult
	decodeJSON(t, resp, &results)
	if results == nil {
		t.Error("expected empty array, got null")
	}
}

func TestDeleteUserMemories(t *testing.T) {
	_, router, _, memories := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	memories.entries["m1"] = memory.Entry{ID: "m1", UserID: "u1", Content: "a"}
	memories.entries["m2"] = memory.Entry{ID: "m2", UserID: "u2", Content: "b"}

	resp := deleteReq(t, ts, "/api/users/u1/memories")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if _, ok := memories.entries["m2"]; !ok {
		t.Error("other user's memory was deleted")
	}
	if _, ok := memories.entries["m1"]; ok {
		t.Error("target user's memory survived")
	}
}
