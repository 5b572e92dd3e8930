package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/evalman/internal/admin"
	"github.com/hitoshi/evalman/internal/middleware"
	"github.com/hitoshi/evalman/internal/model"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	// Stats はプラットフォーム全体の統計を返す。
	Stats(ctx context.Context) (*model.Stats, error)
	// ListEvaluators は全評価者を進捗付きで返す。
	ListEvaluators(ctx context.Context) ([]model.EvaluatorProgress, error)
	// CreateEvaluator は評価者アカウントを作成する。
	CreateEvaluator(ctx context.Context, input admin.CreateEvaluatorInput) (*model.EvaluatorProgress, error)
	// UpdateEvaluator は評価者アカウントを更新する。
	UpdateEvaluator(ctx context.Context, userID string, input admin.UpdateEvaluatorInput) (*model.User, error)
	// DeleteEvaluator は評価者アカウントを削除する。
	DeleteEvaluator(ctx context.Context, userID string) error
	// CreateCase は症例を登録する。
	CreateCase(ctx context.Context, input admin.CreateCaseInput) (*model.Case, error)
	// ExportCSV は全評価をCSV形式で書き出す。
	ExportCSV(ctx context.Context, w io.Writer) error
}

// AdminHandler は管理者操作のHTTPハンドラー。
// 役割ゲートはルーター側のNewRequireRoleMiddlewareで担保する。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// createEvaluatorRequest は評価者作成リクエストのボディ。
type createEvaluatorRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// updateEvaluatorRequest は評価者更新リクエストのボディ。
type updateEvaluatorRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// createCaseRequest は症例登録リクエストのボディ。
type createCaseRequest struct {
	ImagePath   string         `json:"image_path"`
	OverlayPath string         `json:"overlay_path"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// evaluatorResponse は評価者情報のAPIレスポンス。
type evaluatorResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Stats はプラットフォーム統計を返す。
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListEvaluators は評価者一覧を進捗付きで返す。
// GET /api/admin/evaluators
func (h *AdminHandler) ListEvaluators(w http.ResponseWriter, r *http.Request) {
	evaluators, err := h.service.ListEvaluators(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result := make([]evaluatorResponse, 0, len(evaluators))
	for _, e := range evaluators {
		result = append(result, toEvaluatorResponse(e))
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateEvaluator は評価者アカウントを作成する。
// POST /api/admin/evaluators
func (h *AdminHandler) CreateEvaluator(w http.ResponseWriter, r *http.Request) {
	var req createEvaluatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if req.Email == "" || req.Name == "" || req.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "email、name、passwordは必須です。",
			Category: "validation",
			Action:   "すべての項目を入力してください。",
		})
		return
	}

	evaluator, err := h.service.CreateEvaluator(r.Context(), admin.CreateEvaluatorInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEvaluatorResponse(*evaluator))
}

// UpdateEvaluator は評価者アカウントを更新する。
// PATCH /api/admin/evaluators/{id}
func (h *AdminHandler) UpdateEvaluator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req updateEvaluatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	user, err := h.service.UpdateEvaluator(r.Context(), userID, admin.UpdateEvaluatorInput{
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// DeleteEvaluator は評価者アカウントを削除する。
// DELETE /api/admin/evaluators/{id}
func (h *AdminHandler) DeleteEvaluator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if err := h.service.DeleteEvaluator(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateCase は症例を登録する。
// POST /api/admin/cases
func (h *AdminHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	c, err := h.service.CreateCase(r.Context(), admin.CreateCaseInput{
		ImagePath:   req.ImagePath,
		OverlayPath: req.OverlayPath,
		Metadata:    req.Metadata,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCaseResponse(c))
}

// ExportCSV は全評価のCSVダウンロードを処理する。
// GET /api/admin/export
func (h *AdminHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	filename := "evaluations_" + time.Now().UTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := h.service.ExportCSV(r.Context(), w); err != nil {
		// ボディ送信開始後はステータスを変更できないためログのみ
		slog.Error("failed to export evaluations", slog.String("error", err.Error()))
		return
	}
}

// toEvaluatorResponse はmodel.EvaluatorProgressからAPIレスポンスに変換する。
func toEvaluatorResponse(e model.EvaluatorProgress) evaluatorResponse {
	return evaluatorResponse{
		ID:        e.ID,
		Email:     e.Email,
		Name:      e.Name,
		Role:      string(e.Role),
		Completed: e.Completed,
		Total:     e.Total,
	}
}
