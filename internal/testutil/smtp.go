package testutil

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
)

// CapturedMessage is one message received by the test SMTP server.
type CapturedMessage struct {
	From string
	To   []string
	Data []byte
}

// MemoryBackend is a simple in-memory SMTP backend for testing.
type MemoryBackend struct {
	mu       sync.Mutex
	messages []*CapturedMessage
}

// NewMemoryBackend creates a new in-memory SMTP backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		messages: make([]*CapturedMessage, 0),
	}
}

// NewSession creates a new SMTP session.
func (b *MemoryBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &memorySession{backend: b}, nil
}

// GetMessages returns all received messages.
func (b *MemoryBackend) GetMessages() []*CapturedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.messages
}

type memorySession struct {
	backend *MemoryBackend
	from    string
	to      []string
}

func (s *memorySession) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	s.backend.messages = append(s.backend.messages, &CapturedMessage{
		From: s.from,
		To:   s.to,
		Data: data,
	})

	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// TestSMTPServer represents a test SMTP server instance.
type TestSMTPServer struct {
	Server  *smtp.Server
	Address string
	Backend *MemoryBackend
	cleanup func()
}

// NewTestSMTPServer starts an SMTP server with an in-memory backend on a
// random port.
func NewTestSMTPServer(t *testing.T) *TestSMTPServer {
	t.Helper()

	be := NewMemoryBackend()

	s := smtp.NewServer(be)
	s.Addr = ":0"
	s.AllowInsecureAuth = true
	s.Domain = "localhost"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	addr := listener.Addr().String()

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("SMTP server error: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	cleanup := func() {
		if err := s.Close(); err != nil {
			t.Logf("Failed to close SMTP server: %v", err)
		}
	}
	t.Cleanup(cleanup)

	return &TestSMTPServer{
		Server:  s,
		Address: addr,
		Backend: be,
		cleanup: cleanup,
	}
}

// GetMessages returns all messages received by the server.
func (s *TestSMTPServer) GetMessages() []*CapturedMessage {
	return s.Backend.GetMessages()
}
