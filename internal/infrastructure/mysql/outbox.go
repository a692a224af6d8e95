package mysql

import (
	"context"
	"fmt"

	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"

	"github.com/jmoiron/sqlx"
)

type outboxWriter struct{ tx *sqlx.Tx }

var createOutboxQuery = "INSERT INTO outbox_messages (event_name, payload, status, created_at) VALUES (?, ?, ?, ?)"

func (w outboxWriter) Append(ctx context.Context, e domoutbox.Event) error {
	m, err := domoutbox.NewMessage(e)
	if err != nil {
		return err
	}
	if _, err := w.tx.ExecContext(ctx, createOutboxQuery, m.Name, m.Payload, int(domoutbox.StatusPending), m.CreatedAt); err != nil {
		return fmt.Errorf("mysql: append outbox %s: %w", m.Name, err)
	}
	return nil
}

var getPendingOutboxQuery = "SELECT id, event_name, payload, status, created_at FROM outbox_messages WHERE status = ? ORDER BY id LIMIT ?"

func (s *Store) Pending(ctx context.Context, limit int) ([]domoutbox.Message, error) {
	var rows []outboxRow
	if err := s.db.SelectContext(ctx, &rows, getPendingOutboxQuery, int(domoutbox.StatusPending), limit); err != nil {
		return nil, fmt.Errorf("mysql: pending outbox: %w", err)
	}
	res := make([]domoutbox.Message, len(rows))
	for i, row := range rows {
		res[i] = row.domain()
	}
	return res, nil
}

var markDoneOutboxQuery = "UPDATE outbox_messages SET status = ? WHERE id IN (?)"

func (s *Store) MarkDone(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(markDoneOutboxQuery, int(domoutbox.StatusDone), ids)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("mysql: mark outbox done: %w", err)
	}
	return nil
}
