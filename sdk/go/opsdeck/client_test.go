package opsdeck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockServer creates an httptest server that mimics the OpsDeck agent API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:  serverURL,
		AgentKey: "odk_testkey",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{AgentKey: "k"}); err == nil {
		t.Error("expected error for missing BaseURL")
	}
	if _, err := NewClient(Config{BaseURL: "http://localhost"}); err == nil {
		t.Error("expected error for missing AgentKey")
	}
}

func TestSelfSendsKey(t *testing.T) {
	id := uuid.New()
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/agent/agents": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Agent-Key") != "odk_testkey" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"code": "UNAUTHORIZED", "message": "invalid agent credentials"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": []Agent{{ID: id, Name: "scout", Status: "active"}},
			})
		},
	})
	defer srv.Close()

	self, err := newTestClient(t, srv.URL).Self(context.Background())
	if err != nil {
		t.Fatalf("Self failed: %v", err)
	}
	if self.ID != id {
		t.Errorf("expected agent ID %s, got %s", id, self.ID)
	}
}

func TestReportEvent(t *testing.T) {
	agentID := uuid.New()
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/agent/events": func(w http.ResponseWriter, r *http.Request) {
			var req ReportEventRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.EventType != "task_started" {
				t.Errorf("expected event_type task_started, got %q", req.EventType)
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": Event{ID: uuid.New(), AgentID: agentID, EventType: req.EventType},
			})
		},
	})
	defer srv.Close()

	event, err := newTestClient(t, srv.URL).ReportEvent(context.Background(), ReportEventRequest{
		EventType: "task_started",
		Payload:   map[string]any{"step": 1},
	})
	if err != nil {
		t.Fatalf("ReportEvent failed: %v", err)
	}
	if event.AgentID != agentID {
		t.Errorf("expected agent ID %s, got %s", agentID, event.AgentID)
	}
}

func TestReportUsage(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/agent/usage": func(w http.ResponseWriter, r *http.Request) {
			var req ReportUsageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": UsageRecord{
					ID:          uuid.New(),
					Provider:    req.Provider,
					TotalTokens: req.TokensIn + req.TokensOut,
				},
			})
		},
	})
	defer srv.Close()

	record, err := newTestClient(t, srv.URL).ReportUsage(context.Background(), ReportUsageRequest{
		Provider:  "anthropic",
		Model:     "claude-sonnet",
		TokensIn:  100,
		TokensOut: 20,
	})
	if err != nil {
		t.Fatalf("ReportUsage failed: %v", err)
	}
	if record.TotalTokens != 120 {
		t.Errorf("expected 120 total tokens, got %d", record.TotalTokens)
	}
}

func TestUpdateJob(t *testing.T) {
	jobID := uuid.New()
	srv := mockServer(t, map[string]http.HandlerFunc{
		"PATCH /api/agent/jobs/{job_id}": func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("job_id") != jobID.String() {
				writeJSON(w, http.StatusNotFound, map[string]any{
					"error": map[string]any{"code": "NOT_FOUND", "message": "resource not found"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": Job{ID: jobID, Status: "completed", Summary: "done"},
			})
		},
	})
	defer srv.Close()

	status := "completed"
	job, err := newTestClient(t, srv.URL).UpdateJob(context.Background(), jobID, UpdateJobRequest{Status: &status})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}
	if job.Status != "completed" {
		t.Errorf("expected status completed, got %q", job.Status)
	}
}

func TestErrorPredicates(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"PATCH /api/agent/jobs/{job_id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": map[string]any{"code": "FORBIDDEN", "message": "agent does not own this job"},
			})
		},
		"GET /api/agent/agents": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": map[string]any{"code": "UNAUTHORIZED", "message": "invalid agent credentials"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.UpdateJob(context.Background(), uuid.New(), UpdateJobRequest{})
	if !IsForbidden(err) {
		t.Errorf("expected forbidden error, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "agent does not own this job" {
		t.Errorf("unexpected error detail: %v", err)
	}

	_, err = client.Self(context.Background())
	if !IsUnauthorized(err) {
		t.Errorf("expected unauthorized error, got %v", err)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /healthz": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Agent-Key") != "" {
				t.Error("health check should not send the agent key")
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": HealthResponse{Status: "ok", Version: "test", Storage: "demo"},
			})
		},
	})
	defer srv.Close()

	health, err := newTestClient(t, srv.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("expected status ok, got %q", health.Status)
	}
}
