// Package repository はデータ永続化のインターフェースを定義する。
//
// 同一の契約に対して2つの実装を提供する:
// PostgreSQL実装（postgres_*.go、永続・ID生成はDBに委譲）と
// インメモリ実装（memory_store.go、マップ＋アトミックカウンタ、再起動で消える）。
// 起動時に設定でどちらかを選択する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/sitetrack/internal/model"
)

// ErrDuplicateUsername はユーザー名の重複を表す。
// ユーザー名は小文字に正規化した上で一意である。
var ErrDuplicateUsername = errors.New("username already exists")

// ErrProjectNotFound は参照先の案件が存在しないことを表す。
// 工程の作成時に親案件が存在しない場合に返される。
var ErrProjectNotFound = errors.New("project not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。
	// 比較は大文字小文字を区別しない。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成し、IDを採番した保存済みレコードを返す。
	// ユーザー名は小文字に正規化して保存する。
	// 重複時はErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) (*model.User, error)
}

// ProjectRepository は案件データの永続化インターフェース。
type ProjectRepository interface {
	// List は全案件を返す。
	List(ctx context.Context) ([]*model.Project, error)

	// FindByID は指定IDの案件を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Project, error)

	// FindByClientAndCode は施主名と照会コードで案件を検索する。
	// 施主名は大文字小文字を区別せず、照会コードは完全一致で照合する。
	// どちらかが一致しない場合は単一の「見つからない」結果としてnilを返す。
	FindByClientAndCode(ctx context.Context, clientName, secretCode string) (*model.Project, error)

	// Create は案件を作成し、IDを採番した保存済みレコードを返す。
	// 施主名は小文字に正規化して保存する。
	Create(ctx context.Context, project *model.Project) (*model.Project, error)

	// Delete は案件と、その案件に属する全工程を削除する。
	// 工程を先に削除する順序は両実装で保証される。
	// 存在しないIDの削除はエラーにならない。
	Delete(ctx context.Context, id int64) error
}

// ProgressRepository は工程データの永続化インターフェース。
type ProgressRepository interface {
	// ListByProject は案件に属する工程を作成順で返す。
	ListByProject(ctx context.Context, projectID int64) ([]*model.ProgressStep, error)

	// FindByID は指定IDの工程を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.ProgressStep, error)

	// Create は工程を作成し、IDとCreatedAtを採番した保存済みレコードを返す。
	// Completedは呼び出し側の指定に関わらずfalseで初期化される。
	// 親案件が存在しない場合はErrProjectNotFoundを返す。
	Create(ctx context.Context, step *model.ProgressStep) (*model.ProgressStep, error)

	// Update は工程に部分更新を適用し、更新後のレコードを返す。
	// IDとCreatedAtは変更されない。見つからない場合はnilを返す。
	Update(ctx context.Context, id int64, patch model.ProgressPatch) (*model.ProgressStep, error)

	// Delete は指定IDの工程を削除する。存在しないIDの削除はエラーにならない。
	Delete(ctx context.Context, id int64) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにならない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// Store は4つのリポジトリを束ねたストレージハンドル。
// 起動時に1回構築し、ハンドラーに明示的に渡す。
type Store struct {
	Users    UserRepository
	Projects ProjectRepository
	Progress ProgressRepository
	Sessions SessionRepository
}
