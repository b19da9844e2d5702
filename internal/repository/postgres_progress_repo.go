package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/sitetrack/internal/model"
)

// pqForeignKeyViolation はPostgreSQLの外部キー制約違反のエラーコード。
const pqForeignKeyViolation = "23503"

// PostgresProgressRepo はPostgreSQLを使用した工程リポジトリ。
type PostgresProgressRepo struct {
	db *sql.DB
}

// NewPostgresProgressRepo はPostgresProgressRepoを生成する。
func NewPostgresProgressRepo(db *sql.DB) *PostgresProgressRepo {
	return &PostgresProgressRepo{db: db}
}

// ListByProject は案件に属する工程を作成順で返す。
func (r *PostgresProgressRepo) ListByProject(ctx context.Context, projectID int64) ([]*model.ProgressStep, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, title, description, completed, created_at
		 FROM progress_steps
		 WHERE project_id = $1
		 ORDER BY created_at, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress steps: %w", err)
	}
	defer rows.Close()

	steps := []*model.ProgressStep{}
	for rows.Next() {
		s := &model.ProgressStep{}
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Title, &s.Description, &s.Completed, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress step: %w", err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate progress steps: %w", err)
	}

	return steps, nil
}

// FindByID は指定IDの工程を取得する。見つからない場合はnilを返す。
func (r *PostgresProgressRepo) FindByID(ctx context.Context, id int64) (*model.ProgressStep, error) {
	s := &model.ProgressStep{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, description, completed, created_at
		 FROM progress_steps WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.ProjectID, &s.Title, &s.Description, &s.Completed, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find progress step by ID: %w", err)
	}

	return s, nil
}

// Create は工程を作成し、IDとCreatedAtを採番した保存済みレコードを返す。
// completedは呼び出し側の値に関わらずfalseで挿入する。
func (r *PostgresProgressRepo) Create(ctx context.Context, step *model.ProgressStep) (*model.ProgressStep, error) {
	created := &model.ProgressStep{
		ProjectID:   step.ProjectID,
		Title:       step.Title,
		Description: step.Description,
		Completed:   false,
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO progress_steps (project_id, title, description, completed)
		 VALUES ($1, $2, $3, FALSE)
		 RETURNING id, created_at`,
		created.ProjectID, created.Title, created.Description,
	).Scan(&created.ID, &created.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to insert progress step: %w", err)
	}

	return created, nil
}

// Update は工程に部分更新を適用し、更新後のレコードを返す。見つからない場合はnilを返す。
// idとcreated_atはSET句に含めないため不変である。
func (r *PostgresProgressRepo) Update(ctx context.Context, id int64, patch model.ProgressPatch) (*model.ProgressStep, error) {
	var title, description sql.NullString
	var completed sql.NullBool
	if patch.Title != nil {
		title = sql.NullString{String: *patch.Title, Valid: true}
	}
	if patch.Description != nil {
		description = sql.NullString{String: *patch.Description, Valid: true}
	}
	if patch.Completed != nil {
		completed = sql.NullBool{Bool: *patch.Completed, Valid: true}
	}

	s := &model.ProgressStep{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE progress_steps
		 SET title       = COALESCE($2, title),
		     description = COALESCE($3, description),
		     completed   = COALESCE($4, completed)
		 WHERE id = $1
		 RETURNING id, project_id, title, description, completed, created_at`,
		id, title, description, completed,
	).Scan(&s.ID, &s.ProjectID, &s.Title, &s.Description, &s.Completed, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update progress step: %w", err)
	}

	return s, nil
}

// Delete は指定IDの工程を削除する。存在しないIDの削除は何もしない。
func (r *PostgresProgressRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM progress_steps WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("failed to delete progress step: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProgressRepository = (*PostgresProgressRepo)(nil)
