package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/models"
)

// ErrDuplicateReply is returned when the same inbound reply has already been
// recorded for a sent email.
var ErrDuplicateReply = errors.New("reply already recorded")

// ReplyExists reports whether a reply with the given provider message id has
// already been recorded for the email.
func ReplyExists(ctx context.Context, pool *pgxpool.Pool, emailID, providerMessageID string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM email_replies
			WHERE email_id = $1 AND provider_message_id = $2
		)
	`, emailID, providerMessageID).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check reply existence: %w", err)
	}

	return exists, nil
}

// RecordReply inserts the reply and updates the target email's counters in
// one transaction: reply_count increments, replied_at is stamped only on the
// first reply, last_reply_at always advances, status becomes "replied".
// A unique-constraint hit maps to ErrDuplicateReply, which keeps overlapping
// ingestion runs idempotent even when the existence pre-check raced.
func RecordReply(ctx context.Context, pool *pgxpool.Pool, reply *models.Reply) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO email_replies (
			email_id,
			from_address,
			from_name,
			subject,
			body_preview,
			provider_message_id,
			received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		reply.EmailID,
		reply.FromAddress,
		reply.FromName,
		reply.Subject,
		reply.BodyPreview,
		reply.ProviderMessageID,
		reply.ReceivedAt,
	).Scan(&reply.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReply
		}
		return fmt.Errorf("failed to insert reply: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE emails
		SET reply_count = reply_count + 1,
		    replied_at = COALESCE(replied_at, $2),
		    last_reply_at = $2,
		    status = CASE WHEN status = 'bounced' THEN status ELSE 'replied' END
		WHERE id = $1
	`, reply.EmailID, reply.ReceivedAt)

	if err != nil {
		return fmt.Errorf("failed to update email for reply: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reply: %w", err)
	}

	return nil
}

// GetRepliesForEmails returns all replies for multiple emails in a single
// query, as a map from email id to its replies ordered by received time.
func GetRepliesForEmails(ctx context.Context, pool *pgxpool.Pool, emailIDs []string) (map[string][]*models.Reply, error) {
	if len(emailIDs) == 0 {
		return make(map[string][]*models.Reply), nil
	}

	rows, err := pool.Query(ctx, `
		SELECT id, email_id, from_address, from_name, subject, body_preview, provider_message_id, received_at
		FROM email_replies
		WHERE email_id = ANY($1)
		ORDER BY email_id, received_at
	`, emailIDs)

	if err != nil {
		return nil, fmt.Errorf("failed to get replies: %w", err)
	}
	defer rows.Close()

	repliesMap := make(map[string][]*models.Reply)
	for rows.Next() {
		var reply models.Reply
		if err := rows.Scan(
			&reply.ID,
			&reply.EmailID,
			&reply.FromAddress,
			&reply.FromName,
			&reply.Subject,
			&reply.BodyPreview,
			&reply.ProviderMessageID,
			&reply.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		repliesMap[reply.EmailID] = append(repliesMap[reply.EmailID], &reply)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating replies: %w", err)
	}

	return repliesMap, nil
}
