package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulsecrm/backend/internal/provider"
	"github.com/pulsecrm/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastReconcileOpts() provider.ReconcileOptions {
	return provider.ReconcileOptions{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		RecencyWindow:   90 * time.Second,
	}
}

func sentMessage(id, subject, internetMessageID string, recipients ...string) *provider.Message {
	msg := &provider.Message{
		ID:                id,
		Subject:           subject,
		InternetMessageID: internetMessageID,
		ConversationID:    "conv-" + id,
		SentAt:            time.Now(),
	}
	for _, r := range recipients {
		msg.ToRecipients = append(msg.ToRecipients, provider.Recipient{
			EmailAddress: provider.EmailAddress{Address: r},
		})
	}
	return msg
}

func TestReconcileFindsSingleRecipientMatch(t *testing.T) {
	fake := testutil.NewFakeProviderAPI()
	fake.AddMessage(provider.FolderSentItems, sentMessage("m1", "Pricing", "<m1@provider.example>", "other@customer.example"))
	fake.AddMessage(provider.FolderSentItems, sentMessage("m2", "Pricing", "<m2@provider.example>", "lead@customer.example"))

	result, err := provider.ReconcileSentMessage(context.Background(), fake, testMailbox,
		"lead@customer.example", "Pricing", fastReconcileOpts())
	require.NoError(t, err)

	assert.Equal(t, "<m2@provider.example>", result.InternetMessageID)
	assert.Equal(t, "conv-m2", result.ConversationID)
	assert.Equal(t, 1, fake.Calls("ListMessages"))
}

func TestReconcileDisambiguatesBySubject(t *testing.T) {
	fake := testutil.NewFakeProviderAPI()
	// Two recent messages to the same recipient.
	fake.AddMessage(provider.FolderSentItems, sentMessage("m1", "Pricing proposal", "<m1@provider.example>", "lead@customer.example"))
	fake.AddMessage(provider.FolderSentItems, sentMessage("m2", "Invoice overdue", "<m2@provider.example>", "lead@customer.example"))

	result, err := provider.ReconcileSentMessage(context.Background(), fake, testMailbox,
		"lead@customer.example", "Invoice overdue", fastReconcileOpts())
	require.NoError(t, err)

	assert.Equal(t, "<m2@provider.example>", result.InternetMessageID)
}

func TestReconcileAmbiguousFallsBackToNewestRecipientMatch(t *testing.T) {
	fake := testutil.NewFakeProviderAPI()
	fake.AddMessage(provider.FolderSentItems, sentMessage("m1", "Completely different", "<m1@provider.example>", "lead@customer.example"))
	fake.AddMessage(provider.FolderSentItems, sentMessage("m2", "Also unrelated", "<m2@provider.example>", "lead@customer.example"))

	result, err := provider.ReconcileSentMessage(context.Background(), fake, testMailbox,
		"lead@customer.example", "Subject nothing matches", fastReconcileOpts())
	require.NoError(t, err)

	// Few candidates: take the first recipient match rather than giving up.
	assert.Equal(t, "<m1@provider.example>", result.InternetMessageID)
}

func TestReconcileTimesOutAfterMaxAttempts(t *testing.T) {
	fake := testutil.NewFakeProviderAPI()

	opts := fastReconcileOpts()
	_, err := provider.ReconcileSentMessage(context.Background(), fake, testMailbox,
		"lead@customer.example", "Pricing", opts)

	assert.True(t, errors.Is(err, provider.ErrReconciliationTimeout))
	assert.Equal(t, int(opts.MaxAttempts), fake.Calls("ListMessages"))
}

func TestReconcileProviderErrorIsNotRetried(t *testing.T) {
	fake := testutil.NewFakeProviderAPI()
	fake.Fail("ListMessages", provider.ErrAuthFailure)

	_, err := provider.ReconcileSentMessage(context.Background(), fake, testMailbox,
		"lead@customer.example", "Pricing", fastReconcileOpts())

	assert.True(t, errors.Is(err, provider.ErrAuthFailure))
	assert.Equal(t, 1, fake.Calls("ListMessages"))
}

func TestReconcileIgnoresMessagesMissingInternetMessageID(t *testing.T) {
	fake := testutil.NewFakeProviderAPI()
	fake.AddMessage(provider.FolderSentItems, sentMessage("m1", "Pricing", "", "lead@customer.example"))

	_, err := provider.ReconcileSentMessage(context.Background(), fake, testMailbox,
		"lead@customer.example", "Pricing", fastReconcileOpts())

	assert.True(t, errors.Is(err, provider.ErrReconciliationTimeout))
}
