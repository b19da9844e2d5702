package repository

import "database/sql"

// NewPostgresStore はPostgreSQLを使用したStoreを生成する。
// ID生成はデータベースエンジンに委譲され、接続プールの管理はdatabase/sqlに任せる。
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Users:    NewPostgresUserRepo(db),
		Projects: NewPostgresProjectRepo(db),
		Progress: NewPostgresProgressRepo(db),
		Sessions: NewPostgresSessionRepo(db),
	}
}
