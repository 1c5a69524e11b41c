package provider

import "sync"

// ClientSource hands out provider clients for a set of credentials. The
// production implementation is Pool; tests inject a source returning fakes.
type ClientSource interface {
	GetClient(tenantID, clientID, clientSecret string) API
}

// Pool caches provider clients per credential set so token caching is shared
// across requests for the same tenant/application.
type Pool struct {
	baseURL  string
	tokenURL string

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates a client pool. baseURL and tokenURL apply to every client;
// an empty tokenURL lets each client derive the tenant's standard endpoint.
func NewPool(baseURL, tokenURL string) *Pool {
	return &Pool{
		baseURL:  baseURL,
		tokenURL: tokenURL,
		clients:  make(map[string]*Client),
	}
}

// GetClient returns the cached client for the credentials, creating one on
// first use. A changed secret replaces the cached client, dropping its token.
func (p *Pool) GetClient(tenantID, clientID, clientSecret string) API {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := tenantID + "/" + clientID
	if client, ok := p.clients[key]; ok && client.clientSecret == clientSecret {
		return client
	}

	client := NewClient(p.baseURL, p.tokenURL, tenantID, clientID, clientSecret)
	p.clients[key] = client
	return client
}
