package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound は更新・削除対象が存在しない場合のエラー。
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate は一意制約違反のエラー。
	ErrDuplicate = errors.New("duplicate record")

	// ErrAlreadyRotated はリフレッシュトークンが既にローテーション済みまたは失効済みの場合のエラー。
	ErrAlreadyRotated = errors.New("refresh credential already rotated or revoked")
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// isUniqueViolation はerrが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
