package mailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/crypto"
	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/models"
	"github.com/pulsecrm/backend/internal/provider"
)

// ErrInvalidRecipient is returned for a malformed recipient address. The
// request is rejected before any provider call is made.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// ErrNoTransport is returned when the sender account has neither provider
// credentials nor an SMTP fallback configured.
var ErrNoTransport = errors.New("no transport configured for sender account")

// Service runs the outbound send path: validation, record-first persistence,
// thread resolution, body transformation, dispatch, and the best-effort
// post-send side effects (reconciliation, bounce check).
type Service struct {
	pool          *pgxpool.Pool
	clients       provider.ClientSource
	encryptor     *crypto.Encryptor
	smtpSender    SMTPSender
	publicBaseURL string

	// Tunable post-send behavior.
	ReconcileOpts    provider.ReconcileOptions
	BounceCheckDelay time.Duration
}

// NewService creates a new mailer service.
func NewService(pool *pgxpool.Pool, clients provider.ClientSource, encryptor *crypto.Encryptor, publicBaseURL string) *Service {
	return &Service{
		pool:             pool,
		clients:          clients,
		encryptor:        encryptor,
		publicBaseURL:    publicBaseURL,
		ReconcileOpts:    provider.DefaultReconcileOptions(),
		BounceCheckDelay: 45 * time.Second,
	}
}

// Send validates and dispatches one outbound email, returning the persisted
// record. The record is created before dispatch, so a record exists even when
// the provider call fails partway; its "sent" status reflects that a send was
// attempted. Reconciliation failure is non-fatal and just leaves the provider
// identifiers null.
func (s *Service) Send(ctx context.Context, req *models.SendEmailRequest) (*models.Email, error) {
	if err := validateRecipient(req.To); err != nil {
		return nil, err
	}

	account, err := db.GetMailAccountByAddress(ctx, s.pool, req.From)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sender account: %w", err)
	}

	email, parentMessageID, parentConversationID, err := s.buildEmail(ctx, account, req)
	if err != nil {
		return nil, err
	}

	if err := db.SaveEmail(ctx, s.pool, email); err != nil {
		return nil, err
	}

	switch {
	case account.HasProviderCredentials():
		if err := s.sendViaProvider(ctx, account, req, email, parentMessageID, parentConversationID); err != nil {
			return nil, err
		}
	case account.SMTPHostname != "":
		err := s.smtpSender.Send(account.SMTPHostname, account.Address, account.DisplayName,
			email.ToAddress, email.ToName, email.Subject, email.BodyHTML, req.Attachments)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoTransport
	}

	return email, nil
}

// buildEmail assembles the record to persist, resolving thread, parent
// identifiers, and entity association from the parent email when the caller
// did not supply them.
func (s *Service) buildEmail(ctx context.Context, account *models.MailAccount, req *models.SendEmailRequest) (*models.Email, string, string, error) {
	emailID := uuid.NewString()

	threadID := req.ThreadID
	parentMessageID := req.ParentMessageID
	parentConversationID := req.ParentConversationID
	entityType := req.EntityType
	entityID := req.EntityID

	var parentEmailID *string
	if req.IsReply && req.ParentEmailID != "" {
		parent, err := db.GetEmailByID(ctx, s.pool, req.ParentEmailID)
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to resolve parent email: %w", err)
		}

		parentEmailID = &parent.ID
		if threadID == "" {
			threadID = parent.ThreadID
		}
		if parentMessageID == "" && parent.MessageID != nil {
			parentMessageID = *parent.MessageID
		}
		if parentConversationID == "" && parent.ConversationID != nil {
			parentConversationID = *parent.ConversationID
		}
		if entityType == "" && parent.EntityType != nil {
			entityType = *parent.EntityType
			if parent.EntityID != nil {
				entityID = *parent.EntityID
			}
		}
	}

	// A root message seeds its own thread.
	if threadID == "" {
		threadID = emailID
	}

	email := &models.Email{
		ID:            emailID,
		AccountID:     &account.ID,
		FromAddress:   req.From,
		ToAddress:     req.To,
		ToName:        req.ToName,
		Subject:       req.Subject,
		BodyHTML:      TransformBody(req.Body, emailID, s.publicBaseURL),
		Status:        models.StatusSent,
		ThreadID:      threadID,
		ParentEmailID: parentEmailID,
		IsReply:       req.IsReply,
		SentAt:        time.Now(),
	}
	if entityType != "" {
		email.EntityType = &entityType
		email.EntityID = &entityID
	}

	return email, parentMessageID, parentConversationID, nil
}

// sendViaProvider dispatches through the provider API and triggers the
// post-send side effects.
func (s *Service) sendViaProvider(ctx context.Context, account *models.MailAccount, req *models.SendEmailRequest, email *models.Email, parentMessageID, parentConversationID string) error {
	secret, err := s.encryptor.Decrypt(account.EncryptedClientSecret)
	if err != nil {
		return fmt.Errorf("failed to decrypt provider secret: %w", err)
	}

	api := s.clients.GetClient(account.ProviderTenantID, account.ProviderClientID, secret)

	if err := s.dispatch(ctx, api, req, email, parentMessageID, parentConversationID); err != nil {
		return err
	}

	s.reconcileProviderIDs(ctx, api, email)
	s.scheduleBounceCheck(api, email)

	return nil
}

// dispatch selects the delivery strategy. Replies go in-place when the
// parent's provider-native message can be located, falling back to a
// disconnected new message on permission denial -- except when attachments
// are present, because silently dropping them is never acceptable.
func (s *Service) dispatch(ctx context.Context, api provider.API, req *models.SendEmailRequest, email *models.Email, parentMessageID, parentConversationID string) error {
	out := &provider.OutgoingMessage{
		Subject:     email.Subject,
		BodyHTML:    email.BodyHTML,
		ToAddress:   email.ToAddress,
		ToName:      email.ToName,
		Attachments: toProviderAttachments(req.Attachments),
	}

	if req.IsReply && (parentMessageID != "" || parentConversationID != "") {
		target, err := provider.FindMessage(ctx, api, email.FromAddress, parentMessageID, parentConversationID)
		if err != nil {
			log.Printf("Mailer: Warning: Parent lookup failed, sending disconnected: %v", err)
			target = nil
		}

		if target != nil {
			if len(out.Attachments) > 0 {
				return s.replyWithAttachments(ctx, api, email.FromAddress, target.ID, out)
			}

			err := api.Reply(ctx, email.FromAddress, target.ID, out)
			if err == nil {
				return nil
			}
			if errors.Is(err, provider.ErrPermissionDenied) {
				// The message still goes out; it just won't visually thread
				// in the recipient's mail client.
				log.Printf("Mailer: Reply-in-place denied for %s, sending disconnected", email.ToAddress)
				return api.SendMail(ctx, email.FromAddress, out)
			}
			return err
		}
	}

	return api.SendMail(ctx, email.FromAddress, out)
}

// replyWithAttachments runs the create-draft/attach/send sequence, the only
// reply path that supports attachments. A permission denial here is fatal:
// falling back to a disconnected send would drop the attachments.
func (s *Service) replyWithAttachments(ctx context.Context, api provider.API, mailbox, targetID string, out *provider.OutgoingMessage) error {
	draftID, err := api.CreateReplyDraft(ctx, mailbox, targetID)
	if err != nil {
		if errors.Is(err, provider.ErrPermissionDenied) {
			return fmt.Errorf("reply with attachments not permitted: %w", err)
		}
		return err
	}

	if err := api.UpdateDraft(ctx, mailbox, draftID, out); err != nil {
		return err
	}

	for _, att := range out.Attachments {
		if err := api.AddAttachment(ctx, mailbox, draftID, att); err != nil {
			return err
		}
	}

	return api.SendDraft(ctx, mailbox, draftID)
}

// reconcileProviderIDs recovers the internet message id and conversation id
// of the just-sent message from Sent Items. Non-fatal: on failure the record
// keeps null identifiers, which degrades future reply matching but never
// fails the send.
func (s *Service) reconcileProviderIDs(ctx context.Context, api provider.API, email *models.Email) {
	result, err := provider.ReconcileSentMessage(ctx, api, email.FromAddress, email.ToAddress, email.Subject, s.ReconcileOpts)
	if err != nil {
		log.Printf("Mailer: Warning: Reconciliation failed for email %s: %v", email.ID, err)
		return
	}

	if err := db.SetProviderIDs(ctx, s.pool, email.ID, result.InternetMessageID, result.ConversationID); err != nil {
		log.Printf("Mailer: Warning: Failed to persist provider ids for email %s: %v", email.ID, err)
		return
	}

	email.MessageID = &result.InternetMessageID
	email.ConversationID = &result.ConversationID
}

// scheduleBounceCheck probes the sender's inbox for a delivery report after a
// fixed delay. Best-effort: failures are logged and swallowed.
func (s *Service) scheduleBounceCheck(api provider.API, email *models.Email) {
	time.AfterFunc(s.BounceCheckDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.checkBounce(ctx, api, email); err != nil {
			log.Printf("Mailer: Warning: Bounce check failed for email %s: %v", email.ID, err)
		}
	})
}

func (s *Service) checkBounce(ctx context.Context, api provider.API, email *models.Email) error {
	cutoff := email.SentAt.UTC().Format(time.RFC3339)
	messages, err := api.ListMessages(ctx, email.FromAddress, provider.FolderInbox, provider.Query{
		Filter:  "receivedDateTime ge " + cutoff,
		OrderBy: "receivedDateTime desc",
		Select:  []string{"id", "subject", "bodyPreview", "from", "receivedDateTime"},
		Top:     10,
	})
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if !isDeliveryReport(msg) {
			continue
		}
		if strings.Contains(strings.ToLower(msg.BodyPreview), strings.ToLower(email.ToAddress)) {
			log.Printf("Mailer: Email %s to %s bounced", email.ID, email.ToAddress)
			return db.MarkBounced(ctx, s.pool, email.ID)
		}
	}

	return nil
}

func isDeliveryReport(msg *provider.Message) bool {
	if msg.From != nil {
		from := strings.ToLower(msg.From.EmailAddress.Address)
		if strings.HasPrefix(from, "mailer-daemon") || strings.HasPrefix(from, "postmaster") {
			return true
		}
	}
	subject := strings.ToLower(msg.Subject)
	return strings.Contains(subject, "undeliverable") || strings.Contains(subject, "delivery has failed")
}

func validateRecipient(address string) error {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, address)
	}
	// mail.ParseAddress accepts local addresses without a domain dot; the
	// provider rejects those later with a much less helpful error.
	if !strings.Contains(parsed.Address, "@") || !strings.Contains(strings.SplitN(parsed.Address, "@", 2)[1], ".") {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, address)
	}
	return nil
}

func toProviderAttachments(attachments []models.Attachment) []provider.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]provider.Attachment, 0, len(attachments))
	for _, att := range attachments {
		out = append(out, provider.Attachment{
			Name:         att.Name,
			ContentType:  att.ContentType,
			ContentBytes: att.Content,
		})
	}
	return out
}
