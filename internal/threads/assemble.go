package threads

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pulsecrm/backend/internal/models"
)

// Thread is one conversation: the outbound emails sharing a thread id plus
// every reply recorded against them, flattened into a single timeline.
type Thread struct {
	ID             string        `json:"id"`
	Subject        string        `json:"subject"`
	Status         string        `json:"status"`
	EmailCount     int           `json:"email_count"`
	ReplyCount     int           `json:"reply_count"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	Events         []ThreadEvent `json:"events"`
}

// ThreadEvent is one entry in a thread's timeline, either an outbound email
// ("sent") or an inbound reply ("received").
type ThreadEvent struct {
	Kind        string    `json:"kind"`
	EmailID     string    `json:"email_id"`
	FromAddress string    `json:"from_address"`
	FromName    string    `json:"from_name,omitempty"`
	ToAddress   string    `json:"to_address,omitempty"`
	Subject     string    `json:"subject"`
	BodyPreview string    `json:"body_preview,omitempty"`
	Status      string    `json:"status,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	EventSent     = "sent"
	EventReceived = "received"
)

// statusRank orders engagement states so a thread reports its most advanced
// one. Bounced outranks everything.
var statusRank = map[string]int{
	models.StatusSent:      1,
	models.StatusDelivered: 2,
	models.StatusOpened:    3,
	models.StatusReplied:   4,
	models.StatusBounced:   5,
}

var reSubjectPattern = regexp.MustCompile(`(?i)^(re|fwd?)\s*:\s*`)

// NormalizeSubject strips any stack of leading Re:/Fw:/Fwd: prefixes so
// replies group under the original subject.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := reSubjectPattern.ReplaceAllString(s, "")
		if stripped == s {
			return s
		}
		s = strings.TrimSpace(stripped)
	}
}

// Assemble groups emails by thread id and merges their replies into ordered
// timelines. Input order does not matter. Replies keyed to emails absent from
// the input are ignored. Threads come back sorted by last activity, newest
// first.
func Assemble(emails []*models.Email, replies map[string][]*models.Reply) []*Thread {
	byThread := make(map[string]*Thread)

	for _, email := range emails {
		thread, ok := byThread[email.ThreadID]
		if !ok {
			thread = &Thread{
				ID:     email.ThreadID,
				Status: email.Status,
			}
			byThread[email.ThreadID] = thread
		}

		thread.EmailCount++
		if statusRank[email.Status] > statusRank[thread.Status] {
			thread.Status = email.Status
		}

		thread.Events = append(thread.Events, ThreadEvent{
			Kind:        EventSent,
			EmailID:     email.ID,
			FromAddress: email.FromAddress,
			ToAddress:   email.ToAddress,
			Subject:     email.Subject,
			Status:      email.Status,
			Timestamp:   email.SentAt,
		})

		for _, reply := range replies[email.ID] {
			thread.ReplyCount++
			thread.Events = append(thread.Events, ThreadEvent{
				Kind:        EventReceived,
				EmailID:     email.ID,
				FromAddress: reply.FromAddress,
				FromName:    reply.FromName,
				Subject:     reply.Subject,
				BodyPreview: reply.BodyPreview,
				Timestamp:   reply.ReceivedAt,
			})
		}
	}

	threads := make([]*Thread, 0, len(byThread))
	for _, thread := range byThread {
		sort.SliceStable(thread.Events, func(i, j int) bool {
			return thread.Events[i].Timestamp.Before(thread.Events[j].Timestamp)
		})
		thread.LastActivityAt = thread.Events[len(thread.Events)-1].Timestamp
		// The earliest outbound email names the thread.
		for _, event := range thread.Events {
			if event.Kind == EventSent {
				thread.Subject = NormalizeSubject(event.Subject)
				break
			}
		}
		threads = append(threads, thread)
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastActivityAt.After(threads[j].LastActivityAt)
	})

	return threads
}
