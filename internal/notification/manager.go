package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/sneakerbid/internal/store"
)

// ErrNotFound is returned when a notification does not exist or belongs to
// another user. The two cases are indistinguishable to the caller.
var ErrNotFound = errors.New("notification not found")

// Manager records and serves per-user notifications.
type Manager struct {
	repo   store.NotificationRepository
	logger *slog.Logger
	tracer trace.Tracer
}

// NewManager returns a new notification Manager.
func NewManager(repo store.NotificationRepository, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		repo:   repo,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/sneakerbid/internal/notification"),
	}
}

// Notify appends a notification for userID. Failures are logged and
// swallowed: the operation that triggered the notification has already
// committed and must not fail because of it.
func (m *Manager) Notify(ctx context.Context, userID, auctionID, message string) {
	ctx, span := m.tracer.Start(ctx, "Manager.Notify",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("auction.id", auctionID),
		),
	)
	defer span.End()

	n := &store.Notification{UserID: userID, Message: message}
	if auctionID != "" {
		n.AuctionID = &auctionID
	}
	if err := m.repo.Create(ctx, n); err != nil {
		span.RecordError(err)
		m.logger.ErrorContext(ctx, "failed to record notification",
			slog.String("user_id", userID),
			slog.String("auction_id", auctionID),
			slog.Any("error", err),
		)
	}
}

// List returns the user's notifications, unread first and newest first
// within each group.
func (m *Manager) List(ctx context.Context, userID string) ([]store.Notification, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.List",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	notes, err := m.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	if notes == nil {
		notes = []store.Notification{}
	}
	return notes, nil
}

// MarkRead marks one of the user's notifications as read.
func (m *Manager) MarkRead(ctx context.Context, id, userID string) (*store.Notification, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.MarkRead",
		trace.WithAttributes(
			attribute.String("notification.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	n, err := m.repo.MarkRead(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("marking notification read: %w", err)
	}
	return n, nil
}
