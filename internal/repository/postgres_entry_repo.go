package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/gymjournal/internal/model"
)

// PostgresEntryRepo はPostgreSQLを使用した記録リポジトリ。
// INSERTごとにトリガーが journal_entries_changed チャネルへ通知する。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

// Create は記録を追加する。
func (r *PostgresEntryRepo) Create(ctx context.Context, entry *model.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, user_id, content, entry_date, entry_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.Content, entry.Date, entry.Time, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの全記録をcreated_at昇順で返す。
func (r *PostgresEntryRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, content, entry_date, entry_time, created_at
		 FROM journal_entries
		 WHERE user_id = $1
		 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*model.Entry, 0)
	for rows.Next() {
		e := &model.Entry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Content, &e.Date, &e.Time, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}

	return entries, nil
}

// compile-time interface check
var _ EntryRepository = (*PostgresEntryRepo)(nil)
