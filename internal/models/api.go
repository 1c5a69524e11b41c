package models

// SendEmailRequest is the entry contract of the outbound send path.
type SendEmailRequest struct {
	To                   string       `json:"to"`
	ToName               string       `json:"toName,omitempty"`
	From                 string       `json:"from"`
	Subject              string       `json:"subject"`
	Body                 string       `json:"body"`
	Attachments          []Attachment `json:"attachments,omitempty"`
	EntityType           string       `json:"entityType,omitempty"`
	EntityID             string       `json:"entityId,omitempty"`
	ParentEmailID        string       `json:"parentEmailId,omitempty"`
	ThreadID             string       `json:"threadId,omitempty"`
	IsReply              bool         `json:"isReply,omitempty"`
	ParentMessageID      string       `json:"parentMessageId,omitempty"`
	ParentConversationID string       `json:"parentConversationId,omitempty"`
}

// SendEmailResponse is returned on a successful send.
type SendEmailResponse struct {
	Success  bool   `json:"success"`
	EmailID  string `json:"emailId"`
	ThreadID string `json:"threadId"`
}

// ErrorResponse is the error payload for all endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ProcessedReply summarizes one reply recorded by an ingestion run.
type ProcessedReply struct {
	EmailID     string `json:"emailId"`
	ReplyID     string `json:"replyId"`
	FromAddress string `json:"fromAddress"`
	Subject     string `json:"subject"`
}

// CheckRepliesResponse is the summary returned by the reply-ingestion trigger.
type CheckRepliesResponse struct {
	Success          bool             `json:"success"`
	EmailsChecked    int              `json:"emailsChecked"`
	RepliesFound     int              `json:"repliesFound"`
	ProcessedReplies []ProcessedReply `json:"processedReplies"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
}
