package repository

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/sitetrack/internal/model"
)

// memoryCore はインメモリ実装の共有状態。
// 全エンティティが単一のIDカウンタを共有する。カウンタはアトミックに採番し、
// マップへのアクセスはRWMutexで保護するため、並行する書き込みでもIDが重複しない。
// 再起動でデータは消える。開発およびテスト用途を想定している。
type memoryCore struct {
	mu       sync.RWMutex
	nextID   atomic.Int64
	users    map[int64]*model.User
	projects map[int64]*model.Project
	progress map[int64]*model.ProgressStep
	sessions map[string]*model.Session
}

// NewMemoryStore はインメモリ実装のStoreを生成する。
func NewMemoryStore() *Store {
	core := &memoryCore{
		users:    make(map[int64]*model.User),
		projects: make(map[int64]*model.Project),
		progress: make(map[int64]*model.ProgressStep),
		sessions: make(map[string]*model.Session),
	}
	return &Store{
		Users:    &memoryUserRepo{core: core},
		Projects: &memoryProjectRepo{core: core},
		Progress: &memoryProgressRepo{core: core},
		Sessions: &memorySessionRepo{core: core},
	}
}

// --- ユーザー ---

type memoryUserRepo struct {
	core *memoryCore
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *memoryUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.core.mu.RLock()
	defer r.core.mu.RUnlock()

	user, ok := r.core.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *memoryUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.core.mu.RLock()
	defer r.core.mu.RUnlock()

	if user := r.core.findUserByUsernameLocked(username); user != nil {
		copied := *user
		return &copied, nil
	}
	return nil, nil
}

// Create はユーザーを作成し、IDを採番した保存済みレコードを返す。
func (r *memoryUserRepo) Create(ctx context.Context, user *model.User) (*model.User, error) {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	if existing := r.core.findUserByUsernameLocked(user.Username); existing != nil {
		return nil, ErrDuplicateUsername
	}

	created := &model.User{
		ID:           r.core.nextID.Add(1),
		Username:     strings.ToLower(user.Username),
		PasswordHash: user.PasswordHash,
		IsAdmin:      user.IsAdmin,
	}
	r.core.users[created.ID] = created

	copied := *created
	return &copied, nil
}

// findUserByUsernameLocked はロック保持中に小文字化した完全一致でユーザーを探す。
func (c *memoryCore) findUserByUsernameLocked(username string) *model.User {
	lowered := strings.ToLower(username)
	for _, user := range c.users {
		if user.Username == lowered {
			return user
		}
	}
	return nil
}

// --- 案件 ---

type memoryProjectRepo struct {
	core *memoryCore
}

// List は全案件をID昇順で返す。
func (r *memoryProjectRepo) List(ctx context.Context) ([]*model.Project, error) {
	r.core.mu.RLock()
	defer r.core.mu.RUnlock()

	projects := []*model.Project{}
	for _, p := range r.core.projects {
		copied := *p
		projects = append(projects, &copied)
	}
	sortProjectsByID(projects)
	return projects, nil
}

// FindByID は指定IDの案件を取得する。見つからない場合はnilを返す。
func (r *memoryProjectRepo) FindByID(ctx context.Context, id int64) (*model.Project, error) {
	r.core.mu.RLock()
	defer r.core.mu.RUnlock()

	p, ok := r.core.projects[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

// FindByClientAndCode は施主名（大文字小文字を区別しない）と
// 照会コード（完全一致）で案件を検索する。見つからない場合はnilを返す。
func (r *memoryProjectRepo) FindByClientAndCode(ctx context.Context, clientName, secretCode string) (*model.Project, error) {
	r.core.mu.RLock()
	defer r.core.mu.RUnlock()

	lowered := strings.ToLower(clientName)
	for _, p := range r.core.projects {
		if p.ClientName == lowered && p.SecretCode == secretCode {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

// Create は案件を作成し、IDを採番した保存済みレコードを返す。
func (r *memoryProjectRepo) Create(ctx context.Context, project *model.Project) (*model.Project, error) {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	created := &model.Project{
		ID:         r.core.nextID.Add(1),
		ClientName: strings.ToLower(project.ClientName),
		SecretCode: project.SecretCode,
	}
	r.core.projects[created.ID] = created

	copied := *created
	return &copied, nil
}

// Delete は案件と、その案件に属する全工程を削除する。工程を先に削除する。
func (r *memoryProjectRepo) Delete(ctx context.Context, id int64) error {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	for stepID, step := range r.core.progress {
		if step.ProjectID == id {
			delete(r.core.progress, stepID)
		}
	}
	delete(r.core.projects, id)
	return nil
}

// --- 工程 ---

type memoryProgressRepo struct {
	core *memoryCore
}

// ListByProject は案件に属する工程を作成順で返す。
func (r *memoryProgressRepo) ListByProject(ctx context.Context, projectID int64) ([]*model.ProgressStep, error) {
	r.core.mu.RLock()
	defer r.core.mu.RUnlock()

	steps := []*model.ProgressStep{}
	for _, s := range r.core.progress {
		if s.ProjectID == projectID {
			copied := *s
			steps = append(steps, &copied)
		}
	}
	sortStepsByCreation(steps)
	return steps, nil
}

// FindByID は指定IDの工程を取得する。見つからない場合はnilを返す。
func (r *memoryProgressRepo) FindByID(ctx context.Context, id int64) (*model.ProgressStep, error) {
	r.core.mu.RLock()
	defer r.core.mu.RUnlock()

	s, ok := r.core.progress[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

// Create は工程を作成する。親案件が存在しない場合はErrProjectNotFoundを返す。
// completedは呼び出し側の値に関わらずfalseで初期化する。
func (r *memoryProgressRepo) Create(ctx context.Context, step *model.ProgressStep) (*model.ProgressStep, error) {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	if _, ok := r.core.projects[step.ProjectID]; !ok {
		return nil, ErrProjectNotFound
	}

	created := &model.ProgressStep{
		ID:          r.core.nextID.Add(1),
		ProjectID:   step.ProjectID,
		Title:       step.Title,
		Description: step.Description,
		Completed:   false,
		CreatedAt:   time.Now(),
	}
	r.core.progress[created.ID] = created

	copied := *created
	return &copied, nil
}

// Update は工程に部分更新を適用する。IDとCreatedAtは変更しない。
// 見つからない場合はnilを返す。
func (r *memoryProgressRepo) Update(ctx context.Context, id int64, patch model.ProgressPatch) (*model.ProgressStep, error) {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	s, ok := r.core.progress[id]
	if !ok {
		return nil, nil
	}

	if patch.Title != nil {
		s.Title = *patch.Title
	}
	if patch.Description != nil {
		s.Description = *patch.Description
	}
	if patch.Completed != nil {
		s.Completed = *patch.Completed
	}

	copied := *s
	return &copied, nil
}

// Delete は指定IDの工程を削除する。存在しないIDの削除は何もしない。
func (r *memoryProgressRepo) Delete(ctx context.Context, id int64) error {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	delete(r.core.progress, id)
	return nil
}

// --- セッション ---

type memorySessionRepo struct {
	core *memoryCore
}

// Create はセッションを作成する。
func (r *memorySessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	copied := *session
	r.core.sessions[session.ID] = &copied
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *memorySessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.core.mu.RLock()
	defer r.core.mu.RUnlock()

	s, ok := r.core.sessions[id]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *memorySessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	delete(r.core.sessions, id)
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *memorySessionRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	for id, s := range r.core.sessions {
		if s.UserID == userID {
			delete(r.core.sessions, id)
		}
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *memorySessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	now := time.Now()
	var deleted int64
	for id, s := range r.core.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.core.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// compile-time interface checks
var (
	_ UserRepository     = (*memoryUserRepo)(nil)
	_ ProjectRepository  = (*memoryProjectRepo)(nil)
	_ ProgressRepository = (*memoryProgressRepo)(nil)
	_ SessionRepository  = (*memorySessionRepo)(nil)
)
