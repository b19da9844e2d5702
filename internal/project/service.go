// Package project は案件と工程管理のドメインロジックを提供する。
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/sitetrack/internal/model"
	"github.com/hitoshi/sitetrack/internal/repository"
	"github.com/hitoshi/sitetrack/internal/security"
	"github.com/hitoshi/sitetrack/internal/validation"
)

// Service は案件管理のサービス層。
// 管理者向けのCRUD操作を提供する。入力はハンドラー境界で検証済みであることを前提とし、
// ここでは保存前のサニタイズと参照整合性の確認を行う。
type Service struct {
	projectRepo  repository.ProjectRepository
	progressRepo repository.ProgressRepository
	sanitizer    security.TextSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	projectRepo repository.ProjectRepository,
	progressRepo repository.ProgressRepository,
	sanitizer security.TextSanitizerService,
) *Service {
	return &Service{
		projectRepo:  projectRepo,
		progressRepo: progressRepo,
		sanitizer:    sanitizer,
	}
}

// List は全案件を返す。
func (s *Service) List(ctx context.Context) ([]*model.Project, error) {
	projects, err := s.projectRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Create は案件を作成する。
// 施主名はサニタイズした上でストレージ層が小文字に正規化する。
// 照会コードは認証情報のためサニタイズ・正規化せずそのまま保存する。
func (s *Service) Create(ctx context.Context, in *validation.ProjectInput) (*model.Project, error) {
	clientName := s.sanitizer.Sanitize(in.ClientName)
	if clientName == "" {
		return nil, model.NewValidationError("clientName")
	}

	created, err := s.projectRepo.Create(ctx, &model.Project{
		ClientName: clientName,
		SecretCode: in.SecretCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	slog.Info("project created",
		slog.Int64("project_id", created.ID),
	)

	return created, nil
}

// Delete は案件と、その案件に属する全工程を削除する。
// 削除順序（工程→案件）はストレージ層が保証する。存在しないIDの削除は成功扱い。
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.projectRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	slog.Info("project deleted",
		slog.Int64("project_id", id),
	)

	return nil
}

// ListSteps は案件に属する工程を作成順で返す。
// 案件が存在しない場合はPROJECT_NOT_FOUNDを返す。
func (s *Service) ListSteps(ctx context.Context, projectID int64) ([]*model.ProgressStep, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError()
	}

	steps, err := s.progressRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress steps: %w", err)
	}
	return steps, nil
}

// AddStep は案件に工程を追加する。
// 工程は未完了状態で作成され、呼び出し側がcompletedを指定しても無視される。
// 案件が存在しない場合はPROJECT_NOT_FOUNDを返す。
func (s *Service) AddStep(ctx context.Context, projectID int64, in *validation.ProgressInput) (*model.ProgressStep, error) {
	title := s.sanitizer.Sanitize(in.Title)
	description := s.sanitizer.Sanitize(in.Description)
	if title == "" || description == "" {
		var fields []string
		if title == "" {
			fields = append(fields, "title")
		}
		if description == "" {
			fields = append(fields, "description")
		}
		return nil, model.NewValidationError(fields...)
	}

	created, err := s.progressRepo.Create(ctx, &model.ProgressStep{
		ProjectID:   projectID,
		Title:       title,
		Description: description,
	})
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, model.NewProjectNotFoundError()
		}
		return nil, fmt.Errorf("failed to add progress step: %w", err)
	}

	slog.Info("progress step added",
		slog.Int64("project_id", projectID),
		slog.Int64("step_id", created.ID),
	)

	return created, nil
}

// UpdateStep は工程に部分更新を適用する。
// IDとCreatedAtは変更されない。工程が存在しない場合はSTEP_NOT_FOUNDを返す。
func (s *Service) UpdateStep(ctx context.Context, id int64, patch model.ProgressPatch) (*model.ProgressStep, error) {
	if patch.Title != nil {
		sanitized := s.sanitizer.Sanitize(*patch.Title)
		if sanitized == "" {
			return nil, model.NewValidationError("title")
		}
		patch.Title = &sanitized
	}
	if patch.Description != nil {
		sanitized := s.sanitizer.Sanitize(*patch.Description)
		if sanitized == "" {
			return nil, model.NewValidationError("description")
		}
		patch.Description = &sanitized
	}

	updated, err := s.progressRepo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update progress step: %w", err)
	}
	if updated == nil {
		return nil, model.NewStepNotFoundError(id)
	}

	return updated, nil
}

// DeleteStep は工程を削除する。存在しないIDの削除は成功扱い。
func (s *Service) DeleteStep(ctx context.Context, id int64) error {
	if err := s.progressRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete progress step: %w", err)
	}
	return nil
}
