// Package model はドメインモデルを定義する。
package model

import "time"

// User は管理画面にログインするユーザーを表す。
// PasswordHashにはbcryptハッシュのみを格納し、平文パスワードは保持しない。
type User struct {
	ID           int64
	Username     string // 小文字に正規化して保存する
	PasswordHash string
	IsAdmin      bool
}

// Session はユーザーのログインセッションを表す。
// IDはcrypto/randで生成した不透明な識別子で、Cookieとしてクライアントに渡される。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
