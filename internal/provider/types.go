package provider

import (
	"strings"
	"time"
)

// Well-known folder names understood by the provider's message endpoints.
const (
	FolderInbox     = "inbox"
	FolderSentItems = "sentitems"
	// FolderAll addresses the unscoped message list (all folders).
	FolderAll = ""
)

// EmailAddress is a name/address pair as the provider represents it.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Recipient wraps an EmailAddress the way the provider's message schema does.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// Header is one internet message header of a listed message.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ItemBody is a message body with its content type.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Message is a message as returned by the provider's list/get endpoints.
// ID is the provider-native identifier; InternetMessageID is the standard
// Message-ID header used for cross-system correlation.
type Message struct {
	ID                string      `json:"id"`
	Subject           string      `json:"subject"`
	BodyPreview       string      `json:"bodyPreview"`
	InternetMessageID string      `json:"internetMessageId"`
	ConversationID    string      `json:"conversationId"`
	From              *Recipient  `json:"from,omitempty"`
	ToRecipients      []Recipient `json:"toRecipients,omitempty"`
	Headers           []Header    `json:"internetMessageHeaders,omitempty"`
	SentAt            time.Time   `json:"sentDateTime"`
	ReceivedAt        time.Time   `json:"receivedDateTime"`
}

// HeaderValue returns the value of the named header, case-insensitively.
// Returns "" when the header is absent.
func (m *Message) HeaderValue(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Attachment is an outbound file attachment in provider representation.
type Attachment struct {
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes []byte `json:"contentBytes"` // marshals to base64 per the provider contract
}

// OutgoingMessage is the payload for send, reply, and draft-update calls.
type OutgoingMessage struct {
	Subject     string
	BodyHTML    string
	ToAddress   string
	ToName      string
	Attachments []Attachment
}

// Query selects and orders messages on list endpoints (OData-style).
type Query struct {
	Filter  string
	OrderBy string
	Select  []string
	Top     int
}
