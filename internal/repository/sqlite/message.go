package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/model"
	"github.com/sakif/jamspace/internal/repository"
)

var _ repository.MessageRepository = (*MessageDB)(nil)

// MessageDB stores jam session chat messages.
type MessageDB struct {
	conn *sql.DB
}

func (m *MessageDB) Create(ctx context.Context, msg *model.Message) error {
	msg.ID = xid.New().String()
	msg.CreatedAt = time.Now().UTC()

	_, err := m.conn.ExecContext(ctx,
		`INSERT INTO messages (id, jam_session_id, sender_id, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID,
		msg.JamSessionID,
		msg.SenderID,
		msg.Text,
		msg.CreatedAt,
	)
	if err != nil {
		if foreignKeyViolation(err) {
			return apperror.NotFound("jam session", msg.JamSessionID)
		}
		return fmt.Errorf("sqlite: creating message: %w", err)
	}

	if err := m.conn.QueryRowContext(ctx,
		`SELECT username FROM accounts WHERE id = ?`, msg.SenderID,
	).Scan(&msg.Sender); err != nil {
		return fmt.Errorf("sqlite: loading sender %s: %w", msg.SenderID, err)
	}
	return nil
}

// ListByJam orders by created_at then id; xid ids are time-ordered, which
// breaks ties between messages stored in the same instant.
func (m *MessageDB) ListByJam(ctx context.Context, jamID string) ([]model.Message, error) {
	rows, err := m.conn.QueryContext(ctx,
		`SELECT m.id, m.jam_session_id, m.sender_id, a.username, m.text, m.created_at
		 FROM messages m
		 JOIN accounts a ON a.id = m.sender_id
		 WHERE m.jam_session_id = ?
		 ORDER BY m.created_at ASC, m.id ASC`,
		jamID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages of %s: %w", jamID, err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(
			&msg.ID, &msg.JamSessionID, &msg.SenderID, &msg.Sender, &msg.Text, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating messages: %w", err)
	}
	return msgs, nil
}
