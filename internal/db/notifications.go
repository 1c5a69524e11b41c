package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/models"
)

// InsertNotification persists a notification row.
func InsertNotification(ctx context.Context, pool *pgxpool.Pool, notification *models.Notification) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO notifications (account_id, email_id, kind, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`,
		notification.AccountID,
		notification.EmailID,
		notification.Kind,
		notification.Message,
	).Scan(&notification.ID, &notification.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// ListNotifications returns the most recent notifications for an account.
func ListNotifications(ctx context.Context, pool *pgxpool.Pool, accountID string, limit int) ([]*models.Notification, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, account_id, email_id, kind, message, is_read, created_at
		FROM notifications
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.EmailID, &n.Kind, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}
