package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/sitetrack/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用した案件リポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

// List は全案件をID昇順で返す。
func (r *PostgresProjectRepo) List(ctx context.Context) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, client_name, secret_code FROM projects ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*model.Project{}
	for rows.Next() {
		p := &model.Project{}
		if err := rows.Scan(&p.ID, &p.ClientName, &p.SecretCode); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}

	return projects, nil
}

// FindByID は指定IDの案件を取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id int64) (*model.Project, error) {
	p := &model.Project{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_name, secret_code FROM projects WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.ClientName, &p.SecretCode)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project by ID: %w", err)
	}

	return p, nil
}

// FindByClientAndCode は施主名と照会コードで案件を検索する。見つからない場合はnilを返す。
// 施主名は小文字化して照合し、照会コードは完全一致で照合する。
func (r *PostgresProjectRepo) FindByClientAndCode(ctx context.Context, clientName, secretCode string) (*model.Project, error) {
	p := &model.Project{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_name, secret_code FROM projects
		 WHERE client_name = $1 AND secret_code = $2`,
		strings.ToLower(clientName), secretCode,
	).Scan(&p.ID, &p.ClientName, &p.SecretCode)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project by client and code: %w", err)
	}

	return p, nil
}

// Create は案件を作成し、IDを採番した保存済みレコードを返す。
func (r *PostgresProjectRepo) Create(ctx context.Context, project *model.Project) (*model.Project, error) {
	created := &model.Project{
		ClientName: strings.ToLower(project.ClientName),
		SecretCode: project.SecretCode,
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO projects (client_name, secret_code)
		 VALUES ($1, $2)
		 RETURNING id`,
		created.ClientName, created.SecretCode,
	).Scan(&created.ID)

	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}

	return created, nil
}

// Delete は案件と、その案件に属する全工程を同一トランザクションで削除する。
// 外部キー制約に違反しないよう、工程を先に削除する。
func (r *PostgresProjectRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM progress_steps WHERE project_id = $1`, id,
	); err != nil {
		return fmt.Errorf("failed to delete progress steps: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM projects WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
