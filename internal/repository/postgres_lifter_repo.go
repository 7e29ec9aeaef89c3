package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/gymjournal/internal/model"
)

// ErrLifterNotFound は更新対象のLifterが存在しない場合に返る。
var ErrLifterNotFound = errors.New("lifter not found")

// PostgresLifterRepo はPostgreSQLを使用したLifterリポジトリ。
// identitiesはusersに従属するため同じリポジトリで扱う。
type PostgresLifterRepo struct {
	db *sql.DB
}

// NewPostgresLifterRepo はPostgresLifterRepoを生成する。
func NewPostgresLifterRepo(db *sql.DB) *PostgresLifterRepo {
	return &PostgresLifterRepo{db: db}
}

// FindByIdentity はIdPのアカウントに紐付くLifterを返す。未登録の場合はnil。
func (r *PostgresLifterRepo) FindByIdentity(ctx context.Context, provider, subject string) (*model.Lifter, error) {
	lifter := &model.Lifter{}
	var lastSignIn sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.display_name, u.created_at, u.last_sign_in_at
		 FROM identities i
		 JOIN users u ON u.id = i.user_id
		 WHERE i.provider = $1 AND i.subject = $2`,
		provider, subject,
	).Scan(&lifter.ID, &lifter.Email, &lifter.DisplayName, &lifter.CreatedAt, &lastSignIn)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lifter by identity: %w", err)
	}
	if lastSignIn.Valid {
		lifter.LastSignInAt = lastSignIn.Time
	}
	return lifter, nil
}

// Register はLifterとidentityを同一トランザクションで作成する。
func (r *PostgresLifterRepo) Register(ctx context.Context, lifter *model.Lifter, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, created_at, updated_at, last_sign_in_at)
		 VALUES ($1, $2, $3, $4, $4, $5)`,
		lifter.ID, lifter.Email, lifter.DisplayName, lifter.CreatedAt, lifter.LastSignInAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lifter: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, subject, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.LifterID, identity.Provider, identity.Subject, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordSignIn はサインイン時刻とIdPから受け取った最新のプロフィールを保存する。
func (r *PostgresLifterRepo) RecordSignIn(ctx context.Context, id, email, displayName string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET email = $2, display_name = $3, last_sign_in_at = $4, updated_at = $4
		 WHERE id = $1`,
		id, email, displayName, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record sign-in: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLifterNotFound, id)
	}
	return nil
}

var _ LifterRepository = (*PostgresLifterRepo)(nil)
