package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// API is the surface of the mail provider the rest of the service depends on.
// Tests substitute an in-memory fake; production uses Client.
type API interface {
	SendMail(ctx context.Context, mailbox string, msg *OutgoingMessage) error
	Reply(ctx context.Context, mailbox, providerID string, msg *OutgoingMessage) error
	CreateReplyDraft(ctx context.Context, mailbox, providerID string) (string, error)
	UpdateDraft(ctx context.Context, mailbox, draftID string, msg *OutgoingMessage) error
	AddAttachment(ctx context.Context, mailbox, draftID string, att Attachment) error
	SendDraft(ctx context.Context, mailbox, draftID string) error
	ListMessages(ctx context.Context, mailbox, folder string, q Query) ([]*Message, error)
	GetMessageMIME(ctx context.Context, mailbox, providerID string) ([]byte, error)
}

// Client talks to a Graph-style mail API using the OAuth client-credentials
// grant. The access token is cached and refreshed shortly before expiry.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	tokenURL     string
	tenantID     string
	clientID     string
	clientSecret string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a provider client. tokenURL may be empty, in which case
// the provider's standard tenant token endpoint is derived from tenantID.
func NewClient(baseURL, tokenURL, tenantID, clientID, clientSecret string) *Client {
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
	}
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenURL:     tokenURL,
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// getToken returns a cached access token, fetching a new one when the cached
// token is missing or within a minute of expiring.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", "https://graph.microsoft.com/.default")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", ErrAuthFailure, resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailure)
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	return c.accessToken, nil
}

// do performs an authenticated request against the provider and returns the
// raw response body. Non-2xx responses map to the package's error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// doJSON performs the request and unmarshals the response body into out.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	respBody, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response body: %w", err)
	}
	return nil
}

// messagesPath returns the message-collection path, folder-scoped when folder
// is non-empty.
func messagesPath(mailbox, folder string) string {
	if folder == FolderAll {
		return fmt.Sprintf("/users/%s/messages", url.PathEscape(mailbox))
	}
	return fmt.Sprintf("/users/%s/mailFolders/%s/messages", url.PathEscape(mailbox), url.PathEscape(folder))
}

// encode turns a Query into an OData query string (with leading "?"), or ""
// for an empty query.
func (q Query) encode() string {
	values := url.Values{}
	if q.Filter != "" {
		values.Set("$filter", q.Filter)
	}
	if q.OrderBy != "" {
		values.Set("$orderby", q.OrderBy)
	}
	if len(q.Select) > 0 {
		values.Set("$select", strings.Join(q.Select, ","))
	}
	if q.Top > 0 {
		values.Set("$top", strconv.Itoa(q.Top))
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}
