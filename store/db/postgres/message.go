package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/wenjin/chatd/store"
)

func (d *DB) UpsertMessage(ctx context.Context, upsert *store.Message) (*store.Message, error) {
	attachments, err := json.Marshal(upsert.Attachments)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal attachments")
	}

	fields := []string{"id", "conversation_id", "role", "content", "attachments", "status", "created_ts"}
	args := []any{upsert.ID, upsert.ConversationID, upsert.Role, upsert.Content, string(attachments), upsert.Status, upsert.CreatedTs}

	stmt := `INSERT INTO message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			status = EXCLUDED.status`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to upsert message")
	}
	return upsert, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}

	query := `SELECT id, conversation_id, role, content, attachments, status, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var attachments string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &attachments, &m.Status, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal attachments")
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}
	return list, nil
}
