// Package provider implements cloud file provider clients. Each provider
// exposes the same capability set: fetch content, upload content, and
// extract a file identifier from its webhook payload envelope.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNoCredential indicates the token source had no usable bearer credential.
	ErrNoCredential = errors.New("provider: no credential available")
	// ErrNotRegistered indicates no client is registered for the requested provider tag.
	ErrNotRegistered = errors.New("provider: not registered")
)

// Content is a fetched cloud document body with its modification timestamp.
type Content struct {
	Body         string
	LastModified time.Time
}

// TokenSource supplies a valid bearer credential for a provider and tenant,
// or reports that none is available. OAuth acquisition and refresh happen
// behind this interface.
type TokenSource interface {
	Token(ctx context.Context, companyID string) (string, error)
}

// Client is the capability set every cloud provider implements.
type Client interface {
	// Name returns the provider tag this client serves.
	Name() string
	// FetchContent downloads the current document body and modification time.
	FetchContent(ctx context.Context, companyID, fileID string) (Content, error)
	// UploadContent replaces the cloud document body.
	UploadContent(ctx context.Context, companyID, fileID, body string) error
	// ExtractFileID pulls the cloud file identifier out of a decoded webhook
	// payload. Returns "" when the payload does not carry one.
	ExtractFileID(payload map[string]any) string
}

// Registry selects a Client by provider tag.
type Registry struct {
	clients map[string]Client
}

// NewRegistry indexes the provided clients by name.
func NewRegistry(clients ...Client) *Registry {
	indexed := make(map[string]Client, len(clients))
	for _, client := range clients {
		if client == nil {
			continue
		}
		indexed[client.Name()] = client
	}
	return &Registry{clients: indexed}
}

// Client returns the client registered for the tag.
func (r *Registry) Client(name string) (Client, error) {
	if r == nil {
		return nil, ErrNotRegistered
	}
	client, ok := r.clients[name]
	if !ok {
		return nil, ErrNotRegistered
	}
	return client, nil
}

// StaticTokenSource returns the same bearer credential for every tenant.
// Suits single-tenant deployments where the credential arrives through
// configuration; multi-tenant OAuth brokers implement TokenSource instead.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context, string) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

func decodeJSONObject(raw string) (map[string]any, error) {
	decoded := make(map[string]any)
	if err := json.NewDecoder(strings.NewReader(raw)).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
