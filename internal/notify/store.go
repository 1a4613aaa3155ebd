package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/smart-appointment-scheduling/internal/db"
)

// Store persists notifications for reliable delivery.
type Store struct {
	db db.DBTX
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &Store{db: pool}
}

func newStoreWithDB(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// Enqueue writes msg to the outbox and returns its id.
func (s *Store) Enqueue(ctx context.Context, msg Message) (uuid.UUID, error) {
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}
	id := uuid.New()
	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, appointment_id, notification_type, priority, message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, msg.UserID, msg.AppointmentID, msg.Type, string(msg.Priority), msg.Body)
	if err != nil {
		return uuid.Nil, fmt.Errorf("notify: insert notification: %w", err)
	}
	return id, nil
}

// FetchPending returns undelivered notifications with fewer than maxAttempts
// failed attempts, oldest first.
func (s *Store) FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, appointment_id, notification_type, priority, message, attempts, created_at
		FROM notifications
		WHERE delivered_at IS NULL
		  AND attempts < $2
		ORDER BY created_at
		LIMIT $1
	`, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("notify: fetch pending: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var priority string
		if err := rows.Scan(&m.ID, &m.UserID, &m.AppointmentID, &m.Type, &priority, &m.Body, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		m.Priority = Priority(priority)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("notify: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed records a failed delivery attempt; the row stays pending.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET attempts = attempts + 1,
		    last_error = $2
		WHERE id = $1
	`, id, cause.Error())
	if err != nil {
		return fmt.Errorf("notify: mark failed: %w", err)
	}
	return nil
}
