package models

import "time"

// Delivery/engagement states for an outbound email. A state only ever moves
// forward in this list, except that "bounced" wins over everything.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusOpened    = "opened"
	StatusReplied   = "replied"
	StatusBounced   = "bounced"
)

// Email is one outbound email and its delivery/engagement state.
// MessageID and ConversationID stay nil until reconciliation against the
// provider's Sent Items folder fills them in.
type Email struct {
	ID              string     `json:"id"`
	AccountID       *string    `json:"account_id,omitempty"`
	FromAddress     string     `json:"from_address"`
	ToAddress       string     `json:"to_address"`
	ToName          string     `json:"to_name"`
	Subject         string     `json:"subject"`
	BodyHTML        string     `json:"body_html"`
	Status          string     `json:"status"`
	MessageID       *string    `json:"message_id"`
	ConversationID  *string    `json:"conversation_id"`
	ThreadID        string     `json:"thread_id"`
	ParentEmailID   *string    `json:"parent_email_id"`
	IsReply         bool       `json:"is_reply"`
	ReplyCount      int        `json:"reply_count"`
	OpenCount       int        `json:"open_count"`
	ClickCount      int        `json:"click_count"`
	EngagementScore int        `json:"engagement_score"`
	EntityType      *string    `json:"entity_type,omitempty"`
	EntityID        *string    `json:"entity_id,omitempty"`
	SentAt          time.Time  `json:"sent_at"`
	OpenedAt        *time.Time `json:"opened_at,omitempty"`
	RepliedAt       *time.Time `json:"replied_at,omitempty"`
	LastReplyAt     *time.Time `json:"last_reply_at,omitempty"`
}

// Reply is one inbound reply matched to a sent Email. Immutable once recorded.
type Reply struct {
	ID                string    `json:"id"`
	EmailID           string    `json:"email_id"`
	FromAddress       string    `json:"from_address"`
	FromName          string    `json:"from_name"`
	Subject           string    `json:"subject"`
	BodyPreview       string    `json:"body_preview"`
	ProviderMessageID string    `json:"provider_message_id"`
	ReceivedAt        time.Time `json:"received_at"`
}

// Attachment is an outbound file attachment.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// Notification is a persisted in-app notification, also pushed over the
// websocket hub when the account has a live connection.
type Notification struct {
	ID        string    `json:"id"`
	AccountID *string   `json:"account_id,omitempty"`
	EmailID   *string   `json:"email_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification kinds.
const (
	NotificationReplyReceived = "reply_received"
	NotificationLinkClicked   = "link_clicked"
	NotificationEmailOpened   = "email_opened"
)
