package provider

import (
	"context"
	"fmt"
	"log"
)

// lookupStrategy is one way of locating a provider-native message. Returns
// (nil, nil) when it finds nothing, which is a valid outcome, not an error.
type lookupStrategy struct {
	name string
	run  func(ctx context.Context) (*Message, error)
}

var lookupSelect = []string{"id", "subject", "internetMessageId", "conversationId", "receivedDateTime"}

// FindMessage locates the provider-native message id needed for the
// reply-in-place action, given the stored internet message id and/or
// conversation id. Strategies run in order; the first hit wins. A nil result
// with nil error means "not found" and callers fall back to a disconnected
// send.
func FindMessage(ctx context.Context, api API, mailbox, internetMessageID, conversationID string) (*Message, error) {
	var strategies []lookupStrategy

	if internetMessageID != "" {
		filter := "internetMessageId eq " + quoteODataString(internetMessageID)
		strategies = append(strategies,
			lookupStrategy{
				name: "internet message id, all folders",
				run: func(ctx context.Context) (*Message, error) {
					return firstMatch(ctx, api, mailbox, FolderAll, Query{Filter: filter, Select: lookupSelect, Top: 1})
				},
			},
			lookupStrategy{
				name: "internet message id, sent items",
				run: func(ctx context.Context) (*Message, error) {
					return firstMatch(ctx, api, mailbox, FolderSentItems, Query{Filter: filter, Select: lookupSelect, Top: 1})
				},
			},
		)
	}

	if conversationID != "" {
		filter := "conversationId eq " + quoteODataString(conversationID)
		query := Query{
			Filter:  filter,
			OrderBy: "receivedDateTime desc",
			Select:  lookupSelect,
			Top:     1,
		}
		strategies = append(strategies,
			lookupStrategy{
				name: "conversation id, all folders",
				run: func(ctx context.Context) (*Message, error) {
					return firstMatch(ctx, api, mailbox, FolderAll, query)
				},
			},
			lookupStrategy{
				name: "conversation id, sent items",
				run: func(ctx context.Context) (*Message, error) {
					return firstMatch(ctx, api, mailbox, FolderSentItems, query)
				},
			},
		)
	}

	for _, strategy := range strategies {
		msg, err := strategy.run(ctx)
		if err != nil {
			return nil, fmt.Errorf("lookup by %s failed: %w", strategy.name, err)
		}
		if msg != nil {
			return msg, nil
		}
		log.Printf("Provider: Lookup by %s found nothing for %s", strategy.name, mailbox)
	}

	return nil, nil
}

func firstMatch(ctx context.Context, api API, mailbox, folder string, q Query) (*Message, error) {
	messages, err := api.ListMessages(ctx, mailbox, folder, q)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return messages[0], nil
}
