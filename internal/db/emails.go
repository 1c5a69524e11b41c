package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/models"
)

// ErrEmailNotFound is returned when a requested email cannot be found.
var ErrEmailNotFound = errors.New("email not found")

const emailColumns = `
	id,
	account_id,
	from_address,
	to_address,
	to_name,
	subject,
	body_html,
	status,
	message_id,
	conversation_id,
	thread_id,
	parent_email_id,
	is_reply,
	reply_count,
	open_count,
	click_count,
	engagement_score,
	entity_type,
	entity_id,
	sent_at,
	opened_at,
	replied_at,
	last_reply_at
`

func scanEmail(row pgx.Row) (*models.Email, error) {
	var email models.Email
	err := row.Scan(
		&email.ID,
		&email.AccountID,
		&email.FromAddress,
		&email.ToAddress,
		&email.ToName,
		&email.Subject,
		&email.BodyHTML,
		&email.Status,
		&email.MessageID,
		&email.ConversationID,
		&email.ThreadID,
		&email.ParentEmailID,
		&email.IsReply,
		&email.ReplyCount,
		&email.OpenCount,
		&email.ClickCount,
		&email.EngagementScore,
		&email.EntityType,
		&email.EntityID,
		&email.SentAt,
		&email.OpenedAt,
		&email.RepliedAt,
		&email.LastReplyAt,
	)
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// SaveEmail inserts a new email record. The caller supplies ID and ThreadID
// (a root message's thread id is its own id).
func SaveEmail(ctx context.Context, pool *pgxpool.Pool, email *models.Email) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO emails (
			id,
			account_id,
			from_address,
			to_address,
			to_name,
			subject,
			body_html,
			status,
			message_id,
			conversation_id,
			thread_id,
			parent_email_id,
			is_reply,
			entity_type,
			entity_id,
			sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		email.ID,
		email.AccountID,
		email.FromAddress,
		email.ToAddress,
		email.ToName,
		email.Subject,
		email.BodyHTML,
		email.Status,
		email.MessageID,
		email.ConversationID,
		email.ThreadID,
		email.ParentEmailID,
		email.IsReply,
		email.EntityType,
		email.EntityID,
		email.SentAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save email: %w", err)
	}

	return nil
}

// GetEmailByID returns a single email by its id.
func GetEmailByID(ctx context.Context, pool *pgxpool.Pool, emailID string) (*models.Email, error) {
	email, err := scanEmail(pool.QueryRow(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE id = $1
	`, emailID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmailNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}

	return email, nil
}

// SetProviderIDs backfills the internet message id and conversation id that
// reconciliation recovered from the provider's Sent Items folder.
func SetProviderIDs(ctx context.Context, pool *pgxpool.Pool, emailID, messageID, conversationID string) error {
	_, err := pool.Exec(ctx, `
		UPDATE emails
		SET message_id = $2,
		    conversation_id = $3
		WHERE id = $1
	`, emailID, messageID, conversationID)

	if err != nil {
		return fmt.Errorf("failed to set provider ids: %w", err)
	}

	return nil
}

// ListRepliableEmails returns emails sent since the given time that obtained
// a provider message id. Only these can be matched against inbound replies.
func ListRepliableEmails(ctx context.Context, pool *pgxpool.Pool, since time.Time) ([]*models.Email, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE message_id IS NOT NULL AND sent_at >= $1
		ORDER BY from_address, sent_at DESC
	`, since)

	if err != nil {
		return nil, fmt.Errorf("failed to list repliable emails: %w", err)
	}
	defer rows.Close()

	var emails []*models.Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

// GetEmailsForEntity returns all emails associated with a CRM entity
// (contact, lead, or account), newest first.
func GetEmailsForEntity(ctx context.Context, pool *pgxpool.Pool, entityType, entityID string) ([]*models.Email, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY sent_at DESC
	`, entityType, entityID)

	if err != nil {
		return nil, fmt.Errorf("failed to get emails for entity: %w", err)
	}
	defer rows.Close()

	var emails []*models.Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

// RecordOpen increments the open counter, stamps opened_at on the first open,
// and promotes the status to "opened" -- but never downgrades a replied or
// bounced email. Returns true if this was the first open.
func RecordOpen(ctx context.Context, pool *pgxpool.Pool, emailID string) (bool, error) {
	var firstOpen bool
	err := pool.QueryRow(ctx, `
		UPDATE emails
		SET open_count = open_count + 1,
		    opened_at = COALESCE(opened_at, now()),
		    status = CASE WHEN status IN ('sent', 'delivered') THEN 'opened' ELSE status END
		WHERE id = $1
		RETURNING open_count = 1
	`, emailID).Scan(&firstOpen)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrEmailNotFound
	}

	if err != nil {
		return false, fmt.Errorf("failed to record open: %w", err)
	}

	return firstOpen, nil
}

// RecordClick increments the click counter and, on the first click only, adds
// the engagement score bump. Returns true if this was the first click.
func RecordClick(ctx context.Context, pool *pgxpool.Pool, emailID string, scoreBump int) (bool, error) {
	var firstClick bool
	err := pool.QueryRow(ctx, `
		UPDATE emails
		SET click_count = click_count + 1,
		    engagement_score = engagement_score + CASE WHEN click_count = 0 THEN $2 ELSE 0 END
		WHERE id = $1
		RETURNING click_count = 1
	`, emailID, scoreBump).Scan(&firstClick)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrEmailNotFound
	}

	if err != nil {
		return false, fmt.Errorf("failed to record click: %w", err)
	}

	return firstClick, nil
}

// MarkBounced sets the email's status to "bounced". Bounce dominates every
// other status.
func MarkBounced(ctx context.Context, pool *pgxpool.Pool, emailID string) error {
	_, err := pool.Exec(ctx, `
		UPDATE emails
		SET status = 'bounced'
		WHERE id = $1
	`, emailID)

	if err != nil {
		return fmt.Errorf("failed to mark email bounced: %w", err)
	}

	return nil
}
