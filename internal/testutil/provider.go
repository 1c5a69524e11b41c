package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pulsecrm/backend/internal/provider"
)

// FakeProviderAPI is an in-memory implementation of provider.API. Tests
// preload folder contents with AddMessage, inject per-method failures via
// Fail, and assert on recorded calls.
type FakeProviderAPI struct {
	mu sync.Mutex

	folders map[string][]*provider.Message
	mime    map[string][]byte
	fail    map[string]error
	calls   map[string]int

	Sent        []*provider.OutgoingMessage
	RepliedTo   []string
	Drafts      map[string]*provider.OutgoingMessage
	Attachments map[string][]provider.Attachment
	SentDrafts  []string

	nextDraft int
}

func NewFakeProviderAPI() *FakeProviderAPI {
	return &FakeProviderAPI{
		folders:     make(map[string][]*provider.Message),
		mime:        make(map[string][]byte),
		fail:        make(map[string]error),
		calls:       make(map[string]int),
		Drafts:      make(map[string]*provider.OutgoingMessage),
		Attachments: make(map[string][]provider.Attachment),
	}
}

// AddMessage places a message in the given folder. It also appears in
// unscoped (all-folder) listings.
func (f *FakeProviderAPI) AddMessage(folder string, msg *provider.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[folder] = append(f.folders[folder], msg)
}

// SetMIME sets the raw MIME returned for a provider message id.
func (f *FakeProviderAPI) SetMIME(providerID string, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mime[providerID] = raw
}

// Fail makes the named method return the given error. Pass nil to clear.
func (f *FakeProviderAPI) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	f.fail[method] = err
}

// Calls returns how many times the named method was invoked.
func (f *FakeProviderAPI) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns how many API calls were made in total.
func (f *FakeProviderAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *FakeProviderAPI) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.fail[method]
}

func (f *FakeProviderAPI) SendMail(_ context.Context, _ string, msg *provider.OutgoingMessage) error {
	if err := f.enter("SendMail"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, msg)
	return nil
}

func (f *FakeProviderAPI) Reply(_ context.Context, _ string, providerID string, msg *provider.OutgoingMessage) error {
	if err := f.enter("Reply"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RepliedTo = append(f.RepliedTo, providerID)
	f.Sent = append(f.Sent, msg)
	return nil
}

func (f *FakeProviderAPI) CreateReplyDraft(_ context.Context, _ string, _ string) (string, error) {
	if err := f.enter("CreateReplyDraft"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextDraft++
	draftID := fmt.Sprintf("draft-%d", f.nextDraft)
	f.Drafts[draftID] = nil
	return draftID, nil
}

func (f *FakeProviderAPI) UpdateDraft(_ context.Context, _ string, draftID string, msg *provider.OutgoingMessage) error {
	if err := f.enter("UpdateDraft"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Drafts[draftID] = msg
	return nil
}

func (f *FakeProviderAPI) AddAttachment(_ context.Context, _ string, draftID string, att provider.Attachment) error {
	if err := f.enter("AddAttachment"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attachments[draftID] = append(f.Attachments[draftID], att)
	return nil
}

func (f *FakeProviderAPI) SendDraft(_ context.Context, _ string, draftID string) error {
	if err := f.enter("SendDraft"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SentDrafts = append(f.SentDrafts, draftID)
	return nil
}

func (f *FakeProviderAPI) ListMessages(_ context.Context, _ string, folder string, q provider.Query) ([]*provider.Message, error) {
	if err := f.enter("ListMessages"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var candidates []*provider.Message
	if folder == provider.FolderAll {
		for _, msgs := range f.folders {
			candidates = append(candidates, msgs...)
		}
	} else {
		candidates = append(candidates, f.folders[folder]...)
	}

	var messages []*provider.Message
	for _, msg := range candidates {
		if matchesFilter(msg, q.Filter) {
			messages = append(messages, msg)
		}
	}

	if q.Top > 0 && len(messages) > q.Top {
		messages = messages[:q.Top]
	}
	return messages, nil
}

// matchesFilter honors the equality filters the production code issues.
// Date-range clauses are ignored; tests control recency by what they preload.
func matchesFilter(msg *provider.Message, filter string) bool {
	if id, ok := filterValue(filter, "internetMessageId eq "); ok && msg.InternetMessageID != id {
		return false
	}
	if id, ok := filterValue(filter, "conversationId eq "); ok && msg.ConversationID != id {
		return false
	}
	return true
}

func filterValue(filter, clause string) (string, bool) {
	idx := strings.Index(filter, clause)
	if idx < 0 {
		return "", false
	}
	rest := filter[idx+len(clause):]
	if !strings.HasPrefix(rest, "'") {
		return "", false
	}
	end := strings.Index(rest[1:], "'")
	if end < 0 {
		return "", false
	}
	return strings.ReplaceAll(rest[1:1+end], "''", "'"), true
}

func (f *FakeProviderAPI) GetMessageMIME(_ context.Context, _ string, providerID string) ([]byte, error) {
	if err := f.enter("GetMessageMIME"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.mime[providerID]
	if !ok {
		return nil, fmt.Errorf("no MIME stored for message %s", providerID)
	}
	return raw, nil
}

// FakeClientSource hands out a fixed API regardless of credentials and
// records the credentials it saw.
type FakeClientSource struct {
	mu  sync.Mutex
	API provider.API

	SeenSecrets []string
}

func NewFakeClientSource(api provider.API) *FakeClientSource {
	return &FakeClientSource{API: api}
}

func (s *FakeClientSource) GetClient(_, _, clientSecret string) provider.API {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SeenSecrets = append(s.SeenSecrets, clientSecret)
	return s.API
}
