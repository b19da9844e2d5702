package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sitetrack/internal/metrics"
	"github.com/hitoshi/sitetrack/internal/model"
	"github.com/hitoshi/sitetrack/internal/validation"
)

// ProjectServiceInterface は案件ハンドラーが必要とするサービスインターフェース。
type ProjectServiceInterface interface {
	List(ctx context.Context) ([]*model.Project, error)
	Create(ctx context.Context, in *validation.ProjectInput) (*model.Project, error)
	Delete(ctx context.Context, id int64) error
	ListSteps(ctx context.Context, projectID int64) ([]*model.ProgressStep, error)
	AddStep(ctx context.Context, projectID int64, in *validation.ProgressInput) (*model.ProgressStep, error)
	UpdateStep(ctx context.Context, id int64, patch model.ProgressPatch) (*model.ProgressStep, error)
	DeleteStep(ctx context.Context, id int64) error
}

// ProjectHandler は案件・工程管理のHTTPハンドラー。
// 全エンドポイントが管理者権限を要求する（RequireAdminミドルウェアの内側に配置）。
type ProjectHandler struct {
	service ProjectServiceInterface
	metrics metrics.MetricsCollector
}

// NewProjectHandler はProjectHandlerを生成する。collectorはnil可。
func NewProjectHandler(service ProjectServiceInterface, collector metrics.MetricsCollector) *ProjectHandler {
	return &ProjectHandler{
		service: service,
		metrics: collector,
	}
}

// createProjectRequest は案件作成リクエストのボディ。
type createProjectRequest struct {
	ClientName string `json:"clientName"`
	SecretCode string `json:"secretCode"`
}

// createStepRequest は工程追加リクエストのボディ。
// completedを指定しても無視される（工程は常に未完了で作成される）。
type createStepRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// updateStepRequest は工程の部分更新リクエストのボディ。
// 指定されたフィールドのみ更新される。
type updateStepRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// projectResponse は案件情報のAPIレスポンス。
type projectResponse struct {
	ID         int64  `json:"id"`
	ClientName string `json:"clientName"`
	SecretCode string `json:"secretCode"`
}

// stepResponse は工程情報のAPIレスポンス。
type stepResponse struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListProjects は全案件の一覧を返す。
// GET /api/projects
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProjectResponses(projects))
}

// CreateProject は案件を作成する。
// POST /api/projects
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	in, apiErr := validation.Project(req.ClientName, req.SecretCode)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	project, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordProjectCreated()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toProjectResponse(project))
}

// DeleteProject は案件と、その案件に属する全工程を削除する。
// DELETE /api/projects/:id
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, apiErr := validation.ID(chi.URLParam(r, "id"), "id")
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSteps は案件に属する工程を作成順で返す。
// GET /api/projects/:id/progress
func (h *ProjectHandler) ListSteps(w http.ResponseWriter, r *http.Request) {
	projectID, apiErr := validation.ID(chi.URLParam(r, "id"), "id")
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	steps, err := h.service.ListSteps(r.Context(), projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toStepResponses(steps))
}

// AddStep は案件に工程を追加する。
// POST /api/projects/:id/progress
func (h *ProjectHandler) AddStep(w http.ResponseWriter, r *http.Request) {
	projectID, apiErr := validation.ID(chi.URLParam(r, "id"), "id")
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	var req createStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	in, apiErr := validation.Progress(req.Title, req.Description)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	step, err := h.service.AddStep(r.Context(), projectID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toStepResponse(step))
}

// UpdateStep は工程に部分更新を適用する。IDとCreatedAtは変更されない。
// PATCH /api/progress/:id
func (h *ProjectHandler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	id, apiErr := validation.ID(chi.URLParam(r, "id"), "id")
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	var req updateStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	patch, apiErr := validation.ProgressPatch(model.ProgressPatch{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	step, err := h.service.UpdateStep(r.Context(), id, *patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil && patch.Completed != nil && *patch.Completed {
		h.metrics.RecordStepCompleted()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toStepResponse(step))
}

// DeleteStep は工程を削除する。
// DELETE /api/progress/:id
func (h *ProjectHandler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	id, apiErr := validation.ID(chi.URLParam(r, "id"), "id")
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.DeleteStep(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toProjectResponse はmodel.ProjectからAPIレスポンスに変換する。
func toProjectResponse(project *model.Project) projectResponse {
	return projectResponse{
		ID:         project.ID,
		ClientName: project.ClientName,
		SecretCode: project.SecretCode,
	}
}

func toProjectResponses(projects []*model.Project) []projectResponse {
	res := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		res = append(res, toProjectResponse(p))
	}
	return res
}

// toStepResponse はmodel.ProgressStepからAPIレスポンスに変換する。
func toStepResponse(step *model.ProgressStep) stepResponse {
	return stepResponse{
		ID:          step.ID,
		ProjectID:   step.ProjectID,
		Title:       step.Title,
		Description: step.Description,
		Completed:   step.Completed,
		CreatedAt:   step.CreatedAt,
	}
}

func toStepResponses(steps []*model.ProgressStep) []stepResponse {
	res := make([]stepResponse, 0, len(steps))
	for _, s := range steps {
		res = append(res, toStepResponse(s))
	}
	return res
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Category string   `json:"category"`
	Action   string   `json:"action"`
	Fields   []string `json:"fields,omitempty"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Fields:   apiErr.Fields,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeProjectNotFound, model.ErrCodeStepNotFound:
		return http.StatusNotFound
	case model.ErrCodeUsernameTaken:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
