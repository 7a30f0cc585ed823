package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// refreshSecretBytes はリフレッシュトークンの秘密部分のバイト長。
const refreshSecretBytes = 32

// newRefreshSecret は暗号的に安全な秘密文字列を生成する。
func newRefreshSecret() (string, error) {
	b := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// formatRefreshToken はクライアントに渡す "<id>.<secret>" 形式の文字列を組み立てる。
func formatRefreshToken(id, secret string) string {
	return id + "." + secret
}

// parseRefreshToken は "<id>.<secret>" を分解する。
func parseRefreshToken(raw string) (id, secret string, ok bool) {
	id, secret, found := strings.Cut(strings.TrimSpace(raw), ".")
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

// hashRefreshSecret は保存用のSHA-256ハッシュ（16進）を返す。
func hashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// refreshSecretMatches は秘密文字列が保存済みハッシュと一致するかを定数時間で比較する。
func refreshSecretMatches(secret, storedHash string) bool {
	got := hashRefreshSecret(secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
