// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/gymjournal/internal/model"
)

// LifterRepository はLifterとIdP紐付けの永続化インターフェース。
type LifterRepository interface {
	// FindByIdentity はIdPのアカウントに紐付くLifterを返す。未登録の場合はnil。
	FindByIdentity(ctx context.Context, provider, subject string) (*model.Lifter, error)
	// Register はLifterとidentityを同一トランザクションで作成する。
	Register(ctx context.Context, lifter *model.Lifter, identity *model.Identity) error
	// RecordSignIn はサインイン時刻と最新のプロフィールを保存する。
	RecordSignIn(ctx context.Context, id, email, displayName string, at time.Time) error
}

// SessionRepository はセッションの永続化インターフェース。
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// FindActive は期限内のセッションと所有者を返す。見つからない場合はnil。
	FindActive(ctx context.Context, id string) (*model.Session, *model.Lifter, error)
	// Revoke はセッションを削除し、削除した行があったかを返す。
	Revoke(ctx context.Context, id string) (bool, error)
}

// EntryRepository はトレーニング記録の永続化インターフェース。
type EntryRepository interface {
	// Create は記録を追加する。記録は追加のみで更新しない。
	Create(ctx context.Context, entry *model.Entry) error

	// ListByUserID はユーザーの全記録をcreated_at昇順で返す。
	// 記録がない場合は空スライスを返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Entry, error)
}
