package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/evalman/internal/evaluation"
	"github.com/hitoshi/evalman/internal/middleware"
	"github.com/hitoshi/evalman/internal/model"
)

// EvaluationServiceInterface は評価ハンドラーが必要とするサービスインターフェース。
type EvaluationServiceInterface interface {
	// NextCase は未評価の症例を1件返す。全件評価済みの場合はnilを返す。
	NextCase(ctx context.Context, userID string) (*model.Case, error)
	// Progress は評価者の進捗を返す。
	Progress(ctx context.Context, userID string) (*model.Progress, error)
	// Submit は評価を提出する。
	Submit(ctx context.Context, userID string, input evaluation.SubmitInput) (*model.Evaluation, error)
}

// EvaluationHandler は評価ワークフローのHTTPハンドラー。
type EvaluationHandler struct {
	service EvaluationServiceInterface
}

// NewEvaluationHandler はEvaluationHandlerを生成する。
func NewEvaluationHandler(service EvaluationServiceInterface) *EvaluationHandler {
	return &EvaluationHandler{service: service}
}

// caseResponse は症例情報のAPIレスポンス。
type caseResponse struct {
	ID          string         `json:"id"`
	ImagePath   string         `json:"image_path"`
	OverlayPath string         `json:"overlay_path"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// submitEvaluationRequest は評価提出リクエストのボディ。
// commentsは省略可。
type submitEvaluationRequest struct {
	CaseID          string  `json:"case_id"`
	Q1Acceptability int     `json:"q1_acceptability"`
	Q2Confidence    int     `json:"q2_confidence"`
	Comments        *string `json:"comments,omitempty"`
	DurationMs      int64   `json:"duration_ms"`
}

// evaluationResponse は評価提出成功時のAPIレスポンス。
type evaluationResponse struct {
	ID          string `json:"id"`
	CaseID      string `json:"case_id"`
	SubmittedAt string `json:"submitted_at"`
}

// NextCase は評価者が未評価の症例を1件取得する。
// 全症例が評価済みの場合は204 No Contentを返す。
// GET /api/evaluations/next-case
func (h *EvaluationHandler) NextCase(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
		return
	}

	c, err := h.service.NextCase(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if c == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, toCaseResponse(c))
}

// Progress は評価者の進捗を返す。
// GET /api/evaluations/progress
func (h *EvaluationHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
		return
	}

	progress, err := h.service.Progress(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// Submit は評価の提出を処理する。
// 同一症例への二重提出は409 Conflictを返す。
// POST /api/evaluations
func (h *EvaluationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
		return
	}

	var req submitEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if req.CaseID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "case_idは必須です。",
			Category: "validation",
			Action:   "提出対象の症例IDを指定してください。",
		})
		return
	}

	input := evaluation.SubmitInput{
		CaseID:          req.CaseID,
		Q1Acceptability: req.Q1Acceptability,
		Q2Confidence:    req.Q2Confidence,
		DurationMs:      req.DurationMs,
	}
	if req.Comments != nil {
		input.Comments = *req.Comments
	}

	eval, err := h.service.Submit(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, evaluationResponse{
		ID:          eval.ID,
		CaseID:      eval.CaseID,
		SubmittedAt: eval.SubmittedAt.UTC().Format(time.RFC3339),
	})
}

// toCaseResponse はmodel.CaseからAPIレスポンスに変換する。
func toCaseResponse(c *model.Case) caseResponse {
	return caseResponse{
		ID:          c.ID,
		ImagePath:   c.ImagePath,
		OverlayPath: c.OverlayPath,
		Metadata:    c.Metadata,
	}
}
