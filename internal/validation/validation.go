// Package validation は信頼できない入力の検証を提供する。
//
// 各関数は生のリクエスト値を受け取り、型付きの入力構造体か、
// 違反フィールド名を列挙した*model.APIErrorのどちらかを返す純粋関数である。
// ストレージ層に到達する前に、ハンドラー境界で必ず通過させる。
package validation

import (
	"strconv"
	"strings"

	"github.com/hitoshi/sitetrack/internal/model"
)

// CredentialsInput は検証済みのログイン/登録入力を表す。
type CredentialsInput struct {
	Username string
	Password string
}

// Credentials はユーザー名とパスワードを検証する。
// 両フィールドとも空白のみの値は空とみなす。
func Credentials(username, password string) (*CredentialsInput, *model.APIError) {
	var fields []string
	username = strings.TrimSpace(username)
	if username == "" {
		fields = append(fields, "username")
	}
	if password == "" {
		fields = append(fields, "password")
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields...)
	}
	return &CredentialsInput{Username: username, Password: password}, nil
}

// TrackInput は検証済みの施主照会入力を表す。
type TrackInput struct {
	ClientName string
	SecretCode string
}

// Track は施主照会の入力を検証する。
// secretCodeは前後の空白も照合対象のため、トリムしない。
func Track(clientName, secretCode string) (*TrackInput, *model.APIError) {
	var fields []string
	clientName = strings.TrimSpace(clientName)
	if clientName == "" {
		fields = append(fields, "clientName")
	}
	if secretCode == "" {
		fields = append(fields, "secretCode")
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields...)
	}
	return &TrackInput{ClientName: clientName, SecretCode: secretCode}, nil
}

// ProjectInput は検証済みの案件作成入力を表す。
type ProjectInput struct {
	ClientName string
	SecretCode string
}

// Project は案件作成の入力を検証する。
func Project(clientName, secretCode string) (*ProjectInput, *model.APIError) {
	in, err := Track(clientName, secretCode)
	if err != nil {
		return nil, err
	}
	return &ProjectInput{ClientName: in.ClientName, SecretCode: in.SecretCode}, nil
}

// ProgressInput は検証済みの工程作成入力を表す。
type ProgressInput struct {
	Title       string
	Description string
}

// Progress は工程作成の入力を検証する。
func Progress(title, description string) (*ProgressInput, *model.APIError) {
	var fields []string
	title = strings.TrimSpace(title)
	if title == "" {
		fields = append(fields, "title")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		fields = append(fields, "description")
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields...)
	}
	return &ProgressInput{Title: title, Description: description}, nil
}

// ProgressPatch は工程の部分更新入力を検証する。
// 指定されたフィールドのみ検証し、titleとdescriptionは指定時に空であってはならない。
// 全フィールド未指定の更新は違反とする。
func ProgressPatch(patch model.ProgressPatch) (*model.ProgressPatch, *model.APIError) {
	var fields []string
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		if trimmed == "" {
			fields = append(fields, "title")
		} else {
			patch.Title = &trimmed
		}
	}
	if patch.Description != nil {
		trimmed := strings.TrimSpace(*patch.Description)
		if trimmed == "" {
			fields = append(fields, "description")
		} else {
			patch.Description = &trimmed
		}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields...)
	}
	if patch.Title == nil && patch.Description == nil && patch.Completed == nil {
		return nil, model.NewValidationError("title", "description", "completed")
	}
	return &patch, nil
}

// ID はパスパラメータの数値識別子を検証する。
// fieldにはエラー報告用のパラメータ名を渡す。
func ID(raw, field string) (int64, *model.APIError) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError(field)
	}
	return id, nil
}
