// Package audit は認可削除の監査ログを提供する。ログは追記のみで、更新・削除は行わない。
package audit

import (
	"context"
	"fmt"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/ssogate/internal/model"
	"github.com/hitoshi/ssogate/internal/repository"
	"github.com/oklog/ulid/v2"
)

const (
	// DefaultListLimit はListRemovalsでlimit未指定時に返す最大件数。
	DefaultListLimit = 100
	// MaxListLimit はListRemovalsが一度に返す件数の上限。
	MaxListLimit = 500
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// newEntryID は時刻順にソート可能なIDを生成する。
func newEntryID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Actor は削除を実行した利用者のスナップショット。
type Actor struct {
	Email string
	Name  string
}

// Log は監査ログの書き込みと参照を行う。
type Log struct {
	repo repository.RemovalLogRepository
	now  func() time.Time
}

// NewLog はLogを生成する。
func NewLog(repo repository.RemovalLogRepository) *Log {
	return &Log{repo: repo, now: time.Now}
}

// NewRemovalEntry は削除ログのエントリを組み立てる。
// アプリケーション名と実行者はこの時点の値を保存し、以後の変更の影響を受けない。
func (l *Log) NewRemovalEntry(applicationID, applicationName, userEmail string, actor Actor) *model.RemovalLogEntry {
	removedAt := l.now().UTC()
	return &model.RemovalLogEntry{
		ID:              newEntryID(removedAt),
		ApplicationID:   applicationID,
		ApplicationName: applicationName,
		UserEmail:       strings.ToLower(strings.TrimSpace(userEmail)),
		ActorEmail:      actor.Email,
		ActorName:       actor.Name,
		RemovedAt:       removedAt,
	}
}

// RecordRemoval は削除ログを1件追記する。
func (l *Log) RecordRemoval(ctx context.Context, applicationID, applicationName, userEmail string, actor Actor) (*model.RemovalLogEntry, error) {
	entry := l.NewRemovalEntry(applicationID, applicationName, userEmail, actor)
	if err := l.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record removal: %w", err)
	}
	return entry, nil
}

// ListRemovals は新しい順に削除ログを返す。
// limitが0以下の場合はDefaultListLimitを使い、MaxListLimitを超える場合は切り詰める。
func (l *Log) ListRemovals(ctx context.Context, limit int) ([]*model.RemovalLogEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	entries, err := l.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list removals: %w", err)
	}
	return entries, nil
}
