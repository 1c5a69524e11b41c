package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhillyerd/enmime"
	"github.com/pulsecrm/backend/internal/crypto"
	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/models"
	"github.com/pulsecrm/backend/internal/notify"
	"github.com/pulsecrm/backend/internal/provider"
)

// defaultLookback bounds which sent emails are still considered for reply
// matching. Messages older than this no longer accrue replies.
const defaultLookback = 30 * 24 * time.Hour

// inboxPageSize caps how many inbox messages one run inspects per sender.
const inboxPageSize = 50

// Job scans sender inboxes for replies to recently sent emails and records
// the matches. Safe to run repeatedly; already-recorded replies are skipped.
type Job struct {
	pool      *pgxpool.Pool
	clients   provider.ClientSource
	encryptor *crypto.Encryptor
	notifier  *notify.Notifier
	lookback  time.Duration
}

func NewJob(pool *pgxpool.Pool, clients provider.ClientSource, encryptor *crypto.Encryptor, notifier *notify.Notifier) *Job {
	return &Job{
		pool:      pool,
		clients:   clients,
		encryptor: encryptor,
		notifier:  notifier,
		lookback:  defaultLookback,
	}
}

// Run executes one ingestion pass over every sender with reconciled emails
// inside the lookback window. Per-sender failures are logged and the pass
// continues; the error return is reserved for not being able to load the
// candidate set at all.
func (j *Job) Run(ctx context.Context) (*models.CheckRepliesResponse, error) {
	start := time.Now()

	emails, err := db.ListRepliableEmails(ctx, j.pool, time.Now().Add(-j.lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate emails: %w", err)
	}

	summary := &models.CheckRepliesResponse{
		Success:          true,
		EmailsChecked:    len(emails),
		ProcessedReplies: []models.ProcessedReply{},
	}

	for sender, senderEmails := range groupBySender(emails) {
		if err := j.scanSender(ctx, sender, senderEmails, summary); err != nil {
			log.Printf("Ingest: Warning: Skipping sender %s: %v", sender, err)
		}
	}

	summary.ProcessingTimeMs = time.Since(start).Milliseconds()
	return summary, nil
}

// scanSender lists the sender's recent inbox messages once and matches each
// against the sender's candidate emails.
func (j *Job) scanSender(ctx context.Context, sender string, emails []*models.Email, summary *models.CheckRepliesResponse) error {
	account, err := db.GetMailAccountByAddress(ctx, j.pool, sender)
	if err != nil {
		return err
	}
	if !account.HasProviderCredentials() {
		return errors.New("account has no provider credentials")
	}

	secret, err := j.encryptor.Decrypt(account.EncryptedClientSecret)
	if err != nil {
		return fmt.Errorf("failed to decrypt provider secret: %w", err)
	}
	api := j.clients.GetClient(account.ProviderTenantID, account.ProviderClientID, secret)

	oldest := oldestSentAt(emails)
	messages, err := api.ListMessages(ctx, sender, provider.FolderInbox, provider.Query{
		Filter:  "receivedDateTime ge " + oldest.UTC().Format(time.RFC3339),
		OrderBy: "receivedDateTime desc",
		Select:  []string{"id", "subject", "bodyPreview", "from", "internetMessageHeaders", "receivedDateTime"},
		Top:     inboxPageSize,
	})
	if err != nil {
		return err
	}

	index := buildMessageIDIndex(emails)

	for _, msg := range messages {
		if msg.From != nil && strings.EqualFold(msg.From.EmailAddress.Address, sender) {
			continue
		}

		email, ok := j.matchMessage(ctx, api, sender, msg, index)
		if !ok {
			continue
		}

		if err := j.recordMatch(ctx, account, email, msg, summary); err != nil {
			log.Printf("Ingest: Warning: Failed to record reply %s for email %s: %v", msg.ID, email.ID, err)
		}
	}

	return nil
}

// matchMessage resolves an inbox message to the candidate email it replies
// to, or reports no match. Headers missing from the listing are recovered by
// fetching the raw MIME.
func (j *Job) matchMessage(ctx context.Context, api provider.API, mailbox string, msg *provider.Message, index map[string]*models.Email) (*models.Email, bool) {
	inReplyTo := msg.HeaderValue("In-Reply-To")
	references := msg.HeaderValue("References")

	if inReplyTo == "" && references == "" && len(msg.Headers) == 0 {
		inReplyTo, references = j.headersFromMIME(ctx, api, mailbox, msg.ID)
	}

	target := inReplyTo
	if target == "" {
		// The last References token names the immediate parent.
		if tokens := strings.Fields(references); len(tokens) > 0 {
			target = tokens[len(tokens)-1]
		}
	}
	if target == "" {
		return nil, false
	}

	for _, form := range messageIDForms(target) {
		if email, ok := index[form]; ok {
			return email, true
		}
	}
	return nil, false
}

// headersFromMIME fetches the raw message and reads the threading headers
// from the parsed envelope. Best-effort.
func (j *Job) headersFromMIME(ctx context.Context, api provider.API, mailbox, providerID string) (inReplyTo, references string) {
	raw, err := api.GetMessageMIME(ctx, mailbox, providerID)
	if err != nil {
		log.Printf("Ingest: Warning: Failed to fetch MIME for message %s: %v", providerID, err)
		return "", ""
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		log.Printf("Ingest: Warning: Failed to parse MIME for message %s: %v", providerID, err)
		return "", ""
	}

	return env.GetHeader("In-Reply-To"), env.GetHeader("References")
}

func (j *Job) recordMatch(ctx context.Context, account *models.MailAccount, email *models.Email, msg *provider.Message, summary *models.CheckRepliesResponse) error {
	exists, err := db.ReplyExists(ctx, j.pool, email.ID, msg.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	reply := &models.Reply{
		EmailID:           email.ID,
		Subject:           msg.Subject,
		BodyPreview:       msg.BodyPreview,
		ProviderMessageID: msg.ID,
		ReceivedAt:        msg.ReceivedAt,
	}
	if msg.From != nil {
		reply.FromAddress = msg.From.EmailAddress.Address
		reply.FromName = msg.From.EmailAddress.Name
	}

	if err := db.RecordReply(ctx, j.pool, reply); err != nil {
		if errors.Is(err, db.ErrDuplicateReply) {
			// Another run got there first.
			return nil
		}
		return err
	}

	summary.RepliesFound++
	summary.ProcessedReplies = append(summary.ProcessedReplies, models.ProcessedReply{
		EmailID:     email.ID,
		ReplyID:     reply.ID,
		FromAddress: reply.FromAddress,
		Subject:     reply.Subject,
	})

	j.notifier.Notify(ctx, &models.Notification{
		AccountID: &account.ID,
		EmailID:   &email.ID,
		Kind:      models.NotificationReplyReceived,
		Message:   fmt.Sprintf("%s replied: %s", displayName(reply), reply.Subject),
	})

	return nil
}

func displayName(reply *models.Reply) string {
	if reply.FromName != "" {
		return reply.FromName
	}
	return reply.FromAddress
}

func groupBySender(emails []*models.Email) map[string][]*models.Email {
	grouped := make(map[string][]*models.Email)
	for _, email := range emails {
		grouped[email.FromAddress] = append(grouped[email.FromAddress], email)
	}
	return grouped
}

func oldestSentAt(emails []*models.Email) time.Time {
	oldest := emails[0].SentAt
	for _, email := range emails[1:] {
		if email.SentAt.Before(oldest) {
			oldest = email.SentAt
		}
	}
	return oldest
}

// buildMessageIDIndex keys the candidate emails by every form their
// internet message id may appear in, bracketed and bare.
func buildMessageIDIndex(emails []*models.Email) map[string]*models.Email {
	index := make(map[string]*models.Email)
	for _, email := range emails {
		if email.MessageID == nil {
			continue
		}
		for _, form := range messageIDForms(*email.MessageID) {
			index[form] = email
		}
	}
	return index
}

// messageIDForms returns the raw value plus its bracketed and bare variants.
// Header values in the wild are inconsistent about angle brackets.
func messageIDForms(id string) []string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	bare := strings.Trim(id, "<>")
	return []string{id, "<" + bare + ">", bare}
}
