package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/gymjournal/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		session.ID, session.LifterID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindActive は期限内のセッションと所有者を1回のクエリで返す。
// 期限切れ・削除済みの場合、所有者が消えている場合はnilを返す。
func (r *PostgresSessionRepo) FindActive(ctx context.Context, id string) (*model.Session, *model.Lifter, error) {
	session := &model.Session{}
	lifter := &model.Lifter{}
	var lastSignIn sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.expires_at, s.created_at,
		        u.id, u.email, u.display_name, u.created_at, u.last_sign_in_at
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.id = $1 AND s.expires_at > now()`,
		id,
	).Scan(&session.ID, &session.ExpiresAt, &session.CreatedAt,
		&lifter.ID, &lifter.Email, &lifter.DisplayName, &lifter.CreatedAt, &lastSignIn)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	session.LifterID = lifter.ID
	if lastSignIn.Valid {
		lifter.LastSignInAt = lastSignIn.Time
	}
	return session, lifter, nil
}

// Revoke はセッションを削除する。削除した行があった場合にtrueを返す。
func (r *PostgresSessionRepo) Revoke(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
