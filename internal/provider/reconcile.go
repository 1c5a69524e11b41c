package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrReconciliationTimeout is returned when the just-sent message could not
// be located in Sent Items within the retry budget. Callers treat it as
// non-fatal and leave the provider identifiers null.
var ErrReconciliationTimeout = errors.New("sent message not found within retry budget")

// ReconcileOptions tunes the Sent Items polling loop.
type ReconcileOptions struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	RecencyWindow   time.Duration
}

// DefaultReconcileOptions returns the production polling schedule.
func DefaultReconcileOptions() ReconcileOptions {
	return ReconcileOptions{
		MaxAttempts:     5,
		InitialInterval: 2 * time.Second,
		RecencyWindow:   90 * time.Second,
	}
}

// ReconcileResult carries the identifiers recovered for a sent message.
type ReconcileResult struct {
	InternetMessageID string
	ConversationID    string
}

// ReconcileSentMessage polls the mailbox's Sent Items folder until it finds
// the message just sent to toAddress, and returns its internet message id and
// conversation id. The send call itself does not return them, so this is the
// only way to obtain the identifiers later reply matching depends on.
func ReconcileSentMessage(ctx context.Context, api API, mailbox, toAddress, subject string, opts ReconcileOptions) (*ReconcileResult, error) {
	if opts.MaxAttempts == 0 {
		opts = DefaultReconcileOptions()
	}

	attempt := 0
	operation := func() (*ReconcileResult, error) {
		attempt++

		cutoff := time.Now().Add(-opts.RecencyWindow).UTC().Format(time.RFC3339)
		candidates, err := api.ListMessages(ctx, mailbox, FolderSentItems, Query{
			Filter:  "sentDateTime ge " + cutoff,
			OrderBy: "sentDateTime desc",
			Select:  []string{"id", "subject", "internetMessageId", "conversationId", "toRecipients", "sentDateTime"},
			Top:     10,
		})
		if err != nil {
			// Provider errors are not retryable here; polling again with a
			// failing mailbox only burns the budget.
			return nil, backoff.Permanent(err)
		}

		match := pickCandidate(candidates, toAddress, subject)
		if match == nil || match.InternetMessageID == "" {
			log.Printf("Provider: Reconciliation attempt %d found no match for %s", attempt, toAddress)
			return nil, ErrReconciliationTimeout
		}

		return &ReconcileResult{
			InternetMessageID: match.InternetMessageID,
			ConversationID:    match.ConversationID,
		}, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.InitialInterval
	policy.RandomizationFactor = 0

	result, err := backoff.RetryWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, opts.MaxAttempts-1), ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("reconciliation for %s: %w", toAddress, err)
	}

	return result, nil
}

var templateTokenPattern = regexp.MustCompile(`\{\{[^}]*\}\}`)

const subjectPrefixLength = 20

// subjectPrefix strips template-variable tokens and returns the comparison
// prefix used for subject similarity.
func subjectPrefix(subject string) string {
	stripped := strings.TrimSpace(templateTokenPattern.ReplaceAllString(subject, ""))
	if len(stripped) > subjectPrefixLength {
		return stripped[:subjectPrefixLength]
	}
	return stripped
}

// pickCandidate disambiguates between recently sent messages. Preference
// order: recipient match with similar subject, then best recipient match when
// only a few candidates exist, then exact subject match. Heuristic by nature;
// a wrong pick degrades later reply matching but never breaks the send.
func pickCandidate(candidates []*Message, toAddress, subject string) *Message {
	if len(candidates) == 0 {
		return nil
	}

	var recipientMatches []*Message
	for _, candidate := range candidates {
		for _, recipient := range candidate.ToRecipients {
			if strings.EqualFold(recipient.EmailAddress.Address, toAddress) {
				recipientMatches = append(recipientMatches, candidate)
				break
			}
		}
	}

	if len(recipientMatches) == 1 {
		return recipientMatches[0]
	}

	if len(recipientMatches) > 1 {
		prefix := subjectPrefix(subject)
		for _, candidate := range recipientMatches {
			if prefix != "" && strings.HasPrefix(subjectPrefix(candidate.Subject), prefix) {
				return candidate
			}
		}
		// Ambiguous, but with few candidates the newest recipient match is
		// still the most likely one.
		if len(recipientMatches) <= 3 {
			return recipientMatches[0]
		}
	}

	for _, candidate := range candidates {
		if candidate.Subject == subject {
			return candidate
		}
	}

	return nil
}
