package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/finbuddy/finbuddy/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Touch the parent first; zero rows affected means the conversation is
	// missing, and the insert never happens.
	result, err := tx.ExecContext(ctx,
		`UPDATE conversation SET last_message_ts = `+placeholder(1)+`, total_messages = total_messages + 1 WHERE id = `+placeholder(2)+` AND status != 'DELETED'`,
		create.CreatedTs, create.ConversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, store.ErrConversationNotFound
	}

	fields := []string{"uid", "conversation_id", "user_id", "sender", "content", "model", "response_time_ms", "created_ts"}
	args := []any{create.UID, create.ConversationID, create.UserID, string(create.Sender), create.Content, create.Model, create.ResponseTimeMs, create.CreatedTs}

	stmt := `INSERT INTO message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}
	if find.Sender != nil {
		where, args = append(where, "sender = "+placeholder(len(args)+1)), append(args, string(*find.Sender))
	}

	query := `SELECT id, uid, conversation_id, user_id, sender, content, model, response_time_ms, created_ts
		FROM message WHERE ` + strings.Join(where, " AND ")
	if find.Limit != nil {
		// Keep the most recent N, returned oldest-first.
		query = `SELECT * FROM (` + query + fmt.Sprintf(` ORDER BY created_ts DESC, id DESC LIMIT %d`, *find.Limit) + `) ORDER BY created_ts ASC, id ASC`
	} else {
		query += ` ORDER BY created_ts ASC, id ASC`
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var sender string
		var model sql.NullString
		var responseTimeMs sql.NullInt64
		if err := rows.Scan(&m.ID, &m.UID, &m.ConversationID, &m.UserID, &sender, &m.Content, &model, &responseTimeMs, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = store.MessageSender(sender)
		if model.Valid {
			m.Model = &model.String
		}
		if responseTimeMs.Valid {
			m.ResponseTimeMs = &responseTimeMs.Int64
		}
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return list, nil
}

func (d *DB) DeleteMessage(ctx context.Context, delete *store.DeleteMessage) error {
	where, args := []string{}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *delete.ID)
	}
	if delete.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *delete.ConversationID)
	}

	if len(where) == 0 {
		return fmt.Errorf("no condition to delete")
	}

	stmt := `DELETE FROM message WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}
