package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/sitetrack/internal/metrics"
	"github.com/hitoshi/sitetrack/internal/model"
	"github.com/hitoshi/sitetrack/internal/validation"
)

// TrackServiceInterface は施主照会ハンドラーが必要とするサービスインターフェース。
type TrackServiceInterface interface {
	Lookup(ctx context.Context, clientName, secretCode string) (*model.Project, []*model.ProgressStep, error)
}

// TrackHandler は施主向け進捗照会のHTTPハンドラー。
// 無認証・ステートレスで動作し、セッションもCookieも発行しない。
type TrackHandler struct {
	service TrackServiceInterface
	metrics metrics.MetricsCollector
}

// NewTrackHandler はTrackHandlerを生成する。collectorはnil可。
func NewTrackHandler(service TrackServiceInterface, collector metrics.MetricsCollector) *TrackHandler {
	return &TrackHandler{
		service: service,
		metrics: collector,
	}
}

// trackRequest は施主照会リクエストのボディ。
type trackRequest struct {
	ClientName string `json:"clientName"`
	SecretCode string `json:"secretCode"`
}

// trackResponse は施主照会のAPIレスポンス。
type trackResponse struct {
	Project  projectResponse `json:"project"`
	Progress []stepResponse  `json:"progress"`
}

// Track は施主名と照会コードで案件を照会する。
// 施主名の誤りと照会コードの誤りは同じ404として返す。
// POST /api/track
func (h *TrackHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	in, apiErr := validation.Track(req.ClientName, req.SecretCode)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	project, steps, err := h.service.Lookup(r.Context(), in.ClientName, in.SecretCode)
	if err != nil {
		var lookupErr *model.APIError
		if h.metrics != nil && errors.As(err, &lookupErr) && lookupErr.Code == model.ErrCodeProjectNotFound {
			h.metrics.RecordTrackLookup(metrics.ResultNotFound)
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTrackLookup(metrics.ResultSuccess)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trackResponse{
		Project:  toProjectResponse(project),
		Progress: toStepResponses(steps),
	})
}
