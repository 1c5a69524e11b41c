package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// providerMessage is the wire shape of an outgoing message.
type providerMessage struct {
	Subject      string               `json:"subject,omitempty"`
	Body         *ItemBody            `json:"body,omitempty"`
	ToRecipients []Recipient          `json:"toRecipients,omitempty"`
	Attachments  []providerAttachment `json:"attachments,omitempty"`
}

type providerAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes []byte `json:"contentBytes"`
}

const fileAttachmentType = "#microsoft.graph.fileAttachment"

func toProviderMessage(msg *OutgoingMessage) providerMessage {
	pm := providerMessage{
		Subject: msg.Subject,
		Body: &ItemBody{
			ContentType: "HTML",
			Content:     msg.BodyHTML,
		},
	}
	if msg.ToAddress != "" {
		pm.ToRecipients = []Recipient{{
			EmailAddress: EmailAddress{Name: msg.ToName, Address: msg.ToAddress},
		}}
	}
	for _, att := range msg.Attachments {
		pm.Attachments = append(pm.Attachments, providerAttachment{
			ODataType:    fileAttachmentType,
			Name:         att.Name,
			ContentType:  att.ContentType,
			ContentBytes: att.ContentBytes,
		})
	}
	return pm
}

// SendMail sends a new, disconnected message from the mailbox.
func (c *Client) SendMail(ctx context.Context, mailbox string, msg *OutgoingMessage) error {
	payload := map[string]any{
		"message":         toProviderMessage(msg),
		"saveToSentItems": true,
	}

	path := fmt.Sprintf("/users/%s/sendMail", url.PathEscape(mailbox))
	if err := c.doJSON(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("sendMail failed: %w", err)
	}
	return nil
}

// Reply performs the one-shot reply-in-place action on an existing message.
// Preserves the provider's native threading, but cannot carry attachments.
func (c *Client) Reply(ctx context.Context, mailbox, providerID string, msg *OutgoingMessage) error {
	payload := map[string]any{
		"message": providerMessage{
			Body: &ItemBody{ContentType: "HTML", Content: msg.BodyHTML},
		},
	}

	path := fmt.Sprintf("/users/%s/messages/%s/reply", url.PathEscape(mailbox), url.PathEscape(providerID))
	if err := c.doJSON(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("reply failed: %w", err)
	}
	return nil
}

// CreateReplyDraft creates a reply draft on an existing message and returns
// the draft's provider id. Used for replies with attachments, which the
// one-shot reply action does not support.
func (c *Client) CreateReplyDraft(ctx context.Context, mailbox, providerID string) (string, error) {
	var draft Message

	path := fmt.Sprintf("/users/%s/messages/%s/createReply", url.PathEscape(mailbox), url.PathEscape(providerID))
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, &draft); err != nil {
		return "", fmt.Errorf("createReply failed: %w", err)
	}

	if draft.ID == "" {
		return "", fmt.Errorf("createReply returned no draft id")
	}

	return draft.ID, nil
}

// UpdateDraft replaces the draft's body.
func (c *Client) UpdateDraft(ctx context.Context, mailbox, draftID string, msg *OutgoingMessage) error {
	payload := providerMessage{
		Body: &ItemBody{ContentType: "HTML", Content: msg.BodyHTML},
	}

	path := fmt.Sprintf("/users/%s/messages/%s", url.PathEscape(mailbox), url.PathEscape(draftID))
	if err := c.doJSON(ctx, http.MethodPatch, path, payload, nil); err != nil {
		return fmt.Errorf("draft update failed: %w", err)
	}
	return nil
}

// AddAttachment attaches a file to a draft.
func (c *Client) AddAttachment(ctx context.Context, mailbox, draftID string, att Attachment) error {
	payload := providerAttachment{
		ODataType:    fileAttachmentType,
		Name:         att.Name,
		ContentType:  att.ContentType,
		ContentBytes: att.ContentBytes,
	}

	path := fmt.Sprintf("/users/%s/messages/%s/attachments", url.PathEscape(mailbox), url.PathEscape(draftID))
	if err := c.doJSON(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("attachment upload failed: %w", err)
	}
	return nil
}

// SendDraft dispatches a previously created draft.
func (c *Client) SendDraft(ctx context.Context, mailbox, draftID string) error {
	path := fmt.Sprintf("/users/%s/messages/%s/send", url.PathEscape(mailbox), url.PathEscape(draftID))
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("draft send failed: %w", err)
	}
	return nil
}
