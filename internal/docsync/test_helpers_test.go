package docsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/propforge/docsync/internal/provider"
)

func mustDocumentID(t *testing.T, value string) DocumentID {
	t.Helper()
	id, err := NewDocumentID(value)
	if err != nil {
		t.Fatalf("unexpected document id error: %v", err)
	}
	return id
}

func mustCompanyID(t *testing.T, value string) CompanyID {
	t.Helper()
	id, err := NewCompanyID(value)
	if err != nil {
		t.Fatalf("unexpected company id error: %v", err)
	}
	return id
}

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

// fakeCloudClient implements provider.Client against in-memory content.
// Webhook payloads use the flat {"fileId": ...} shape for simplicity.
type fakeCloudClient struct {
	mu       sync.Mutex
	name     string
	content  map[string]string
	modified time.Time
	fetchErr error
	uploads  map[string]string
	upErr    error
}

func newFakeCloudClient(name string) *fakeCloudClient {
	return &fakeCloudClient{
		name:     name,
		content:  make(map[string]string),
		modified: time.Unix(1700000500, 0).UTC(),
		uploads:  make(map[string]string),
	}
}

func (c *fakeCloudClient) Name() string {
	return c.name
}

func (c *fakeCloudClient) FetchContent(_ context.Context, _, fileID string) (provider.Content, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return provider.Content{}, c.fetchErr
	}
	body, ok := c.content[fileID]
	if !ok {
		return provider.Content{}, errors.New("file not found")
	}
	return provider.Content{Body: body, LastModified: c.modified}, nil
}

func (c *fakeCloudClient) UploadContent(_ context.Context, _, fileID, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.upErr != nil {
		return c.upErr
	}
	c.uploads[fileID] = body
	c.content[fileID] = body
	return nil
}

func (c *fakeCloudClient) ExtractFileID(payload map[string]any) string {
	fileID, _ := payload["fileId"].(string)
	return fileID
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (a *recordingAudit) Record(_ context.Context, entry AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	actions := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

type recordingEvents struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (e *recordingEvents) PublishStatus(event StatusEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEvents) statuses() []SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	statuses := make([]SyncStatus, 0, len(e.events))
	for _, event := range e.events {
		statuses = append(statuses, event.Status)
	}
	return statuses
}

type testFixture struct {
	service *Service
	db      *gorm.DB
	client  *fakeCloudClient
	audit   *recordingAudit
	events  *recordingEvents
}

func newTestFixture(t *testing.T, ids []string) *testFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:docsync_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&SyncState{}, &Conflict{}, &Version{}, &Document{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	client := newFakeCloudClient(string(ProviderOneDrive))
	audit := &recordingAudit{}
	events := &recordingEvents{}
	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &staticIDGenerator{ids: ids},
		Providers:  provider.NewRegistry(client),
		Audit:      audit,
		Events:     events,
	})
	if err != nil {
		t.Fatalf("failed to construct sync service: %v", err)
	}

	return &testFixture{service: service, db: db, client: client, audit: audit, events: events}
}

func (f *testFixture) initialize(t *testing.T, documentID, cloudFileID string) *SyncState {
	t.Helper()
	state, err := f.service.InitializeSync(context.Background(),
		mustDocumentID(t, documentID), ProviderOneDrive, cloudFileID,
		mustCompanyID(t, "company-1"), "user-1")
	if err != nil {
		t.Fatalf("failed to initialize sync: %v", err)
	}
	return state
}
