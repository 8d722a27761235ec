package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/finbuddy/finbuddy/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	if create.Status == "" {
		create.Status = store.ConversationStatusActive
	}

	fields := []string{"uid", "user_id", "title", "status", "started_ts", "last_message_ts"}
	args := []any{create.UID, create.UserID, create.Title, string(create.Status), create.StartedTs, create.LastMessageTs}

	stmt := `INSERT INTO conversation (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id, total_messages`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID, &create.TotalMessages); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*find.Status))
	}
	if find.ExcludeDeleted {
		where = append(where, "status != 'DELETED'")
	}

	query := `SELECT id, uid, user_id, title, status, started_ts, last_message_ts, total_messages
		FROM conversation WHERE ` + strings.Join(where, " AND ") + ` ORDER BY last_message_ts DESC, id DESC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c := &store.Conversation{}
		var status string
		if err := rows.Scan(&c.ID, &c.UID, &c.UserID, &c.Title, &status, &c.StartedTs, &c.LastMessageTs, &c.TotalMessages); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.Status = store.ConversationStatus(status)
		list = append(list, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Status != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, string(*update.Status))
	}
	if update.LastMessageTs != nil {
		set, args = append(set, "last_message_ts = "+placeholder(len(args)+1)), append(args, *update.LastMessageTs)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	// RETURNING all fields to avoid a follow-up query.
	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) +
		` RETURNING id, uid, user_id, title, status, started_ts, last_message_ts, total_messages`

	result := &store.Conversation{}
	var status string
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&result.ID, &result.UID, &result.UserID, &result.Title, &status, &result.StartedTs, &result.LastMessageTs, &result.TotalMessages,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	result.Status = store.ConversationStatus(status)

	return result, nil
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Messages first, then the conversation row.
	if _, err := tx.ExecContext(ctx, `DELETE FROM message WHERE conversation_id = `+placeholder(1), delete.ID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM conversation WHERE id = `+placeholder(1), delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return store.ErrConversationNotFound
	}

	return tx.Commit()
}
