package server

import (
	"context"
	"testing"
	"time"

	"github.com/propforge/docsync/internal/docsync"
)

func TestStatusDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewStatusDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "company-1")
	defer cleanup()

	dispatcher.PublishStatus(docsync.StatusEvent{
		DocumentID: "doc-1",
		CompanyID:  "company-1",
		Provider:   "onedrive",
		Status:     docsync.StatusSyncing,
		At:         time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.Status != docsync.StatusSyncing {
			t.Fatalf("expected syncing status, got %s", received.Status)
		}
		if received.DocumentID != "doc-1" {
			t.Fatalf("unexpected document id %s", received.DocumentID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected status event within deadline")
	}
}

func TestStatusDispatcherIsolatedByCompany(t *testing.T) {
	dispatcher := NewStatusDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	companyStream, cleanup := dispatcher.Subscribe(ctx, "company-2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "company-3")
	defer otherCleanup()

	dispatcher.PublishStatus(docsync.StatusEvent{
		DocumentID: "doc-1",
		CompanyID:  "company-3",
		Status:     docsync.StatusSynced,
		At:         time.Now().UTC(),
	})

	select {
	case <-companyStream:
		t.Fatal("did not expect event for unrelated company")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case event := <-otherStream:
		if event.CompanyID != "company-3" {
			t.Fatalf("expected company-3, received %s", event.CompanyID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event for subscribed company")
	}
}

func TestStatusDispatcherUnsubscribeOnContextCancel(t *testing.T) {
	dispatcher := NewStatusDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "company-1")
	defer cleanup()
	cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		dispatcher.mu.RLock()
		remaining := len(dispatcher.subscribers)
		dispatcher.mu.RUnlock()
		if remaining == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected subscriber to be removed after context cancellation")
}

func TestStatusDispatcherIgnoresEmptyCompany(t *testing.T) {
	dispatcher := NewStatusDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), "")
	defer cleanup()

	if _, open := <-stream; open {
		t.Fatal("expected a closed stream for an empty company id")
	}
}
