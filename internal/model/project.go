// Package model はドメインモデルを定義する。
package model

import "time"

// Project は工事案件を表す。
// (ClientName, SecretCode) の組が施主向けの認証情報となる。
// ClientNameは小文字に正規化して保存し、SecretCodeは大文字小文字を区別する。
type Project struct {
	ID         int64
	ClientName string
	SecretCode string
}

// ProgressStep は案件に属する工程を表す。
// IDとCreatedAtは作成後に変更されない。
type ProgressStep struct {
	ID          int64
	ProjectID   int64
	Title       string
	Description string
	Completed   bool
	CreatedAt   time.Time
}

// ProgressPatch は工程の部分更新を表す。
// nilのフィールドは変更せず、既存の値を維持する。
type ProgressPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}
