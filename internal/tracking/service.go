// Package tracking は施主向けの進捗照会を提供する。
//
// 照会は無認証・ステートレスで、施主名と照会コードの組が一致した場合のみ
// 案件と工程一覧を返す。施主名の誤りと照会コードの誤りは区別せず、
// どちらも同じPROJECT_NOT_FOUNDとして扱う（案件の存在を外部から探索させない）。
package tracking

import (
	"context"
	"fmt"

	"github.com/hitoshi/sitetrack/internal/model"
	"github.com/hitoshi/sitetrack/internal/repository"
)

// Service は進捗照会のサービス層。
type Service struct {
	projectRepo  repository.ProjectRepository
	progressRepo repository.ProgressRepository
}

// NewService はServiceを生成する。
func NewService(
	projectRepo repository.ProjectRepository,
	progressRepo repository.ProgressRepository,
) *Service {
	return &Service{
		projectRepo:  projectRepo,
		progressRepo: progressRepo,
	}
}

// Lookup は施主名と照会コードで案件を照会し、案件と工程一覧を返す。
// 施主名の照合は大文字小文字を区別せず、照会コードは完全一致。
// 一致する案件がない場合はPROJECT_NOT_FOUNDを返す。
func (s *Service) Lookup(ctx context.Context, clientName, secretCode string) (*model.Project, []*model.ProgressStep, error) {
	project, err := s.projectRepo.FindByClientAndCode(ctx, clientName, secretCode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil {
		return nil, nil, model.NewProjectNotFoundError()
	}

	steps, err := s.progressRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list progress steps: %w", err)
	}

	return project, steps, nil
}
