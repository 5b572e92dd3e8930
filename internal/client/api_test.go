package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/evalman/internal/model"
)

func newTestAPIClient(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAPIClient(server.URL, server.Client(), testLogger())
}

func TestAPIClient_Login_Success(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Email != "doc@example.com" || req.Password != "secret" {
			t.Errorf("credentials = %q/%q, want doc@example.com/secret", req.Email, req.Password)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"token": "abc123",
			"user": map[string]string{
				"id": "u1", "email": "doc@example.com", "name": "Doc", "role": "evaluator",
			},
		})
	})

	token, user, err := client.Login(context.Background(), "doc@example.com", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %q, want abc123", token)
	}
	if user.Role != model.RoleEvaluator {
		t.Errorf("role = %q, want evaluator", user.Role)
	}
}

func TestAPIClient_Login_Unauthorized(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"code": "INVALID_CREDENTIALS"})
	})

	_, _, err := client.Login(context.Background(), "doc@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAPIClient_ValidateSession_SendsBearerToken(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer my-token" {
			t.Errorf("Authorization = %q, want Bearer my-token", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id": "u1", "email": "doc@example.com", "name": "Doc", "role": "evaluator",
		})
	})

	user, err := client.ValidateSession(context.Background(), "my-token")
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user ID = %q, want u1", user.ID)
	}
}

func TestAPIClient_ValidateSession_Expired(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.ValidateSession(context.Background(), "stale")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestAPIClient_NextCase_ReturnsCase(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/evaluations/next-case" {
			t.Errorf("path = %q, want /api/evaluations/next-case", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":           "case-7",
			"image_path":   "/images/case-7.png",
			"overlay_path": "/overlays/case-7.png",
			"metadata":     map[string]string{"filename": "scan-007.png"},
		})
	})

	c, err := client.NextCase(context.Background(), "tok")
	if err != nil {
		t.Fatalf("NextCase failed: %v", err)
	}
	if c.ID != "case-7" {
		t.Errorf("case ID = %q, want case-7", c.ID)
	}
	if c.Metadata["filename"] != "scan-007.png" {
		t.Errorf("metadata filename = %v, want scan-007.png", c.Metadata["filename"])
	}
}

// 204はキュー枯渇を意味し、エラーではなくnilを返す。
func TestAPIClient_NextCase_NoContent_ReturnsNil(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	c, err := client.NextCase(context.Background(), "tok")
	if err != nil {
		t.Fatalf("NextCase failed: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil case for 204, got %+v", c)
	}
}

func TestAPIClient_Progress(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"completed": 4, "total": 10})
	})

	p, err := client.Progress(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if p.Completed != 4 || p.Total != 10 {
		t.Errorf("progress = %+v, want {4 10}", p)
	}
}

func TestAPIClient_SubmitEvaluation_OmitsEmptyComments(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if _, present := raw["comments"]; present {
			t.Error("empty comments must be omitted from the request body")
		}

		var req struct {
			CaseID          string `json:"case_id"`
			Q1Acceptability int    `json:"q1_acceptability"`
			Q2Confidence    int    `json:"q2_confidence"`
			DurationMs      int64  `json:"duration_ms"`
		}
		body, _ := json.Marshal(raw)
		json.Unmarshal(body, &req)
		if req.CaseID != "case-7" || req.Q1Acceptability != 4 || req.Q2Confidence != 5 {
			t.Errorf("unexpected judgment payload: %+v", req)
		}
		if req.DurationMs < 0 {
			t.Errorf("duration_ms = %d, must be non-negative", req.DurationMs)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "ev-1", "case_id": "case-7"})
	})

	err := client.SubmitEvaluation(context.Background(), "tok", Judgment{
		CaseID: "case-7", Q1: 4, Q2: 5, Comments: "", ElapsedMs: 1200,
	})
	if err != nil {
		t.Fatalf("SubmitEvaluation failed: %v", err)
	}
}

func TestAPIClient_SubmitEvaluation_SendsComments(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Comments *string `json:"comments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Comments == nil || *req.Comments != "境界が不明瞭" {
			t.Errorf("comments = %v, want 境界が不明瞭", req.Comments)
		}
		w.WriteHeader(http.StatusCreated)
	})

	err := client.SubmitEvaluation(context.Background(), "tok", Judgment{
		CaseID: "case-7", Q1: 2, Q2: 3, Comments: "境界が不明瞭", ElapsedMs: 900,
	})
	if err != nil {
		t.Fatalf("SubmitEvaluation failed: %v", err)
	}
}

func TestAPIClient_SubmitEvaluation_Conflict(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"code": "ALREADY_EVALUATED"})
	})

	err := client.SubmitEvaluation(context.Background(), "tok", Judgment{CaseID: "case-7", Q1: 1, Q2: 1})
	if !errors.Is(err, ErrAlreadyEvaluated) {
		t.Errorf("err = %v, want ErrAlreadyEvaluated", err)
	}
}

func TestAPIClient_StatusError_IncludesCodeAndMessage(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "INVALID_SCORE",
			"message": "スコアが範囲外です",
		})
	})

	err := client.SubmitEvaluation(context.Background(), "tok", Judgment{CaseID: "c", Q1: 1, Q2: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "INVALID_SCORE") || !strings.Contains(got, "400") {
		t.Errorf("error %q should mention the code and status", got)
	}
}

func TestAPIClient_AdminStats_Success(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/admin/stats" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer admin-token" {
			t.Errorf("Authorization = %q, want Bearer admin-token", got)
		}
		json.NewEncoder(w).Encode(map[string]int{
			"totalCases":           40,
			"totalEvaluators":      3,
			"completedEvaluations": 25,
			"pendingEvaluations":   95,
		})
	})

	stats, err := client.AdminStats(context.Background(), "admin-token")
	if err != nil {
		t.Fatalf("AdminStats failed: %v", err)
	}
	if stats.TotalCases != 40 || stats.TotalEvaluators != 3 {
		t.Errorf("stats = %+v, want totalCases=40 totalEvaluators=3", stats)
	}
	if stats.CompletedEvaluations != 25 || stats.PendingEvaluations != 95 {
		t.Errorf("stats = %+v, want completed=25 pending=95", stats)
	}
}

func TestAPIClient_AdminStats_Forbidden(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"code": "FORBIDDEN"})
	})

	_, err := client.AdminStats(context.Background(), "evaluator-token")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "403") {
		t.Errorf("error %q should mention the status", got)
	}
}

func TestAPIClient_AdminEvaluators_Success(t *testing.T) {
	client := newTestAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/admin/evaluators" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "u1", "email": "a@example.com", "name": "評価者A", "role": "evaluator", "completed": 12, "total": 40},
			{"id": "u2", "email": "b@example.com", "name": "評価者B", "role": "evaluator", "completed": 0, "total": 40},
		})
	})

	evaluators, err := client.AdminEvaluators(context.Background(), "admin-token")
	if err != nil {
		t.Fatalf("AdminEvaluators failed: %v", err)
	}
	if len(evaluators) != 2 {
		t.Fatalf("len = %d, want 2", len(evaluators))
	}
	if evaluators[0].Name != "評価者A" || evaluators[0].Completed != 12 {
		t.Errorf("evaluators[0] = %+v, want 評価者A with completed=12", evaluators[0])
	}
}
