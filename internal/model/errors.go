// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラー分類を表す。HTTPステータスへの対応付けに使用する。
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindTokenExpired   ErrorKind = "token_expired"
	KindRefreshInvalid ErrorKind = "refresh_invalid"
)

// APIError は統一エラーフォーマットを表す。
// Messageはクライアントにdetailとしてそのまま返される。
type APIError struct {
	Kind    ErrorKind // エラー分類
	Code    string    // エラーコード
	Message string    // クライアント向けメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeRefreshInvalid       = "REFRESH_INVALID"
)

// IsKind はerrがkindに分類されるAPIErrorを含むかどうかを返す。
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// NewAuthenticationError は認証失敗エラーを生成する。
func NewAuthenticationError(message string) *APIError {
	return &APIError{
		Kind:    KindAuthentication,
		Code:    ErrCodeAuthenticationFailed,
		Message: message,
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレス未登録・パスワード不一致・停止中アカウントを区別しない。
func NewInvalidCredentialsError() *APIError {
	return NewAuthenticationError("Invalid email or password")
}

// NewAuthorizationError は権限不足・ブロック状態によるアクセス拒否エラーを生成する。
func NewAuthorizationError(message string) *APIError {
	return &APIError{
		Kind:    KindAuthorization,
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// NewAdminRequiredError は管理者権限が必要な操作のエラーを生成する。
func NewAdminRequiredError() *APIError {
	return NewAuthorizationError("Admin access required")
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewConflictError は一意制約違反エラーを生成する。
func NewConflictError(message string) *APIError {
	return &APIError{
		Kind:    KindConflict,
		Code:    ErrCodeConflict,
		Message: message,
	}
}

// NewTokenExpiredError はアクセストークン期限切れエラーを生成する。
// クライアントはリフレッシュ後に1回だけ再試行できる。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Kind:    KindTokenExpired,
		Code:    ErrCodeTokenExpired,
		Message: "Access token has expired",
	}
}

// NewRefreshInvalidError はリフレッシュトークンが使用できない場合のエラーを生成する。
// クライアントは保持している資格情報をすべて破棄する必要がある。
func NewRefreshInvalidError(message string) *APIError {
	return &APIError{
		Kind:    KindRefreshInvalid,
		Code:    ErrCodeRefreshInvalid,
		Message: message,
	}
}
