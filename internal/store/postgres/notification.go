package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/store"
)

// NotificationRepo implements store.NotificationRepository with sqlx.
type NotificationRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewNotificationRepo returns a new NotificationRepo.
func NewNotificationRepo(db *sqlx.DB, clk clock.Clock) *NotificationRepo {
	return &NotificationRepo{db: db, clock: clk}
}

func (r *NotificationRepo) Create(ctx context.Context, n *store.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = r.clock.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, auction_id, message, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserID, n.AuctionID, n.Message, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID string) ([]store.Notification, error) {
	var notes []store.Notification
	err := r.db.SelectContext(ctx, &notes,
		`SELECT id, user_id, auction_id, message, read, created_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY read ASC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return notes, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string) (*store.Notification, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	var n store.Notification
	err := r.db.GetContext(ctx, &n,
		`UPDATE notifications SET read = TRUE
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, auction_id, message, read, created_at`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("marking notification read: %w", err)
	}
	return &n, nil
}
