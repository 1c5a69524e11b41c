package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer returns a server that issues tokens at /token and handles
// everything else with the given handler.
func newTestServer(t *testing.T, tokenCalls *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)

		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, "wrong grant type", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"tok-1","expires_in":3600}`)
	})
	mux.HandleFunc("/", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClientTokenIsCachedAcrossRequests(t *testing.T) {
	var tokenCalls int32
	server := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"value":[]}`)
	})

	client := NewClient(server.URL, server.URL+"/token", "tenant-1", "client-1", "secret")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := client.ListMessages(ctx, "rep@pulsecrm.example", FolderInbox, Query{})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestClientTokenRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, server.URL+"/token", "tenant-1", "client-1", "wrong")

	_, err := client.ListMessages(context.Background(), "rep@pulsecrm.example", FolderInbox, Query{})
	assert.True(t, errors.Is(err, ErrAuthFailure))
}

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected error
	}{
		{"401 maps to auth failure", http.StatusUnauthorized, ErrAuthFailure},
		{"403 maps to permission denied", http.StatusForbidden, ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tokenCalls int32
			server := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "denied", tt.status)
			})

			client := NewClient(server.URL, server.URL+"/token", "tenant-1", "client-1", "secret")
			err := client.SendMail(context.Background(), "rep@pulsecrm.example", &OutgoingMessage{
				Subject:   "Hello",
				BodyHTML:  "<p>Hi</p>",
				ToAddress: "lead@customer.example",
			})

			assert.True(t, errors.Is(err, tt.expected), "got %v", err)
		})
	}

	t.Run("other statuses carry a RequestError", func(t *testing.T) {
		var tokenCalls int32
		server := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		})

		client := NewClient(server.URL, server.URL+"/token", "tenant-1", "client-1", "secret")
		err := client.SendDraft(context.Background(), "rep@pulsecrm.example", "draft-1")

		var reqErr *RequestError
		require.True(t, errors.As(err, &reqErr), "got %v", err)
		assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	})
}

func TestClientSendMailPayload(t *testing.T) {
	var captured map[string]any
	var tokenCalls int32
	server := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/rep@pulsecrm.example/sendMail", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusAccepted)
	})

	client := NewClient(server.URL, server.URL+"/token", "tenant-1", "client-1", "secret")
	err := client.SendMail(context.Background(), "rep@pulsecrm.example", &OutgoingMessage{
		Subject:   "Pricing",
		BodyHTML:  "<p>Hi</p>",
		ToAddress: "lead@customer.example",
		ToName:    "Dana Lead",
		Attachments: []Attachment{
			{Name: "doc.pdf", ContentType: "application/pdf", ContentBytes: []byte("%PDF-")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, true, captured["saveToSentItems"])

	message := captured["message"].(map[string]any)
	assert.Equal(t, "Pricing", message["subject"])

	attachments := message["attachments"].([]any)
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "#microsoft.graph.fileAttachment", att["@odata.type"])
	// []byte marshals to base64 on the wire.
	assert.Equal(t, "JVBERi0=", att["contentBytes"])
}

func TestClientListMessagesQuery(t *testing.T) {
	var capturedQuery string
	var tokenCalls int32
	server := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/rep@pulsecrm.example/mailFolders/sentitems/messages", r.URL.Path)
		capturedQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"value":[{"id":"m-1","subject":"Hello"}]}`)
	})

	client := NewClient(server.URL, server.URL+"/token", "tenant-1", "client-1", "secret")
	messages, err := client.ListMessages(context.Background(), "rep@pulsecrm.example", FolderSentItems, Query{
		Filter:  "sentDateTime ge 2026-03-10T00:00:00Z",
		OrderBy: "sentDateTime desc",
		Select:  []string{"id", "subject"},
		Top:     10,
	})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m-1", messages[0].ID)

	for _, expected := range []string{"%24filter=", "%24orderby=", "%24select=id%2Csubject", "%24top=10"} {
		if !strings.Contains(capturedQuery, expected) {
			t.Errorf("query %q missing %q", capturedQuery, expected)
		}
	}
}

func TestMessagesPath(t *testing.T) {
	assert.Equal(t, "/users/rep@pulsecrm.example/messages", messagesPath("rep@pulsecrm.example", FolderAll))
	assert.Equal(t, "/users/rep@pulsecrm.example/mailFolders/inbox/messages", messagesPath("rep@pulsecrm.example", FolderInbox))
}

func TestQuoteODataString(t *testing.T) {
	assert.Equal(t, "'<id@example.com>'", quoteODataString("<id@example.com>"))
	assert.Equal(t, "'it''s'", quoteODataString("it's"))
}

func TestPoolReusesClients(t *testing.T) {
	pool := NewPool("https://provider.example", "")

	a := pool.GetClient("tenant-1", "client-1", "secret-1")
	b := pool.GetClient("tenant-1", "client-1", "secret-1")
	assert.Same(t, a, b)

	// A rotated secret replaces the cached client.
	c := pool.GetClient("tenant-1", "client-1", "secret-2")
	assert.NotSame(t, a, c)

	d := pool.GetClient("tenant-2", "client-1", "secret-1")
	assert.NotSame(t, a, d)
}
