package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type messageList struct {
	Value []*Message `json:"value"`
}

// ListMessages lists messages in the mailbox, optionally scoped to a folder,
// applying the given OData query.
func (c *Client) ListMessages(ctx context.Context, mailbox, folder string, q Query) ([]*Message, error) {
	var list messageList

	path := messagesPath(mailbox, folder) + q.encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("message list failed: %w", err)
	}

	return list.Value, nil
}

// GetMessageMIME fetches the raw MIME content of a message. Used as a
// fallback when a list response does not carry internet message headers.
func (c *Client) GetMessageMIME(ctx context.Context, mailbox, providerID string) ([]byte, error) {
	path := fmt.Sprintf("/users/%s/messages/%s/$value", url.PathEscape(mailbox), url.PathEscape(providerID))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("MIME fetch failed: %w", err)
	}
	return body, nil
}

// quoteODataString escapes a value for use inside an OData string literal.
func quoteODataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
